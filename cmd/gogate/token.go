package main

import (
	"errors"
	"fmt"
	"strings"
	"time"

	goGate "github.com/MrEthical07/goGate"
	"github.com/spf13/cobra"
)

type tokenView struct {
	AccessToken string           `json:"accessToken"`
	ExpiresIn   string           `json:"expiresIn"`
	Principal   goGate.Principal `json:"principal"`
}

func newTokenCmd(st *cliState) *cobra.Command {
	var (
		principal string
		ttl       time.Duration
		attrs     []string
	)
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Mint an access token for a principal",
		RunE: func(cmd *cobra.Command, _ []string) error {
			p, err := parsePrincipal(principal, attrs)
			if err != nil {
				return err
			}
			return withEngine(cmd.Context(), st.cfg, func(e *goGate.Engine) error {
				token, err := e.IssueAccessToken(p, ttl)
				if err != nil {
					return err
				}
				expiresIn := ttl
				if expiresIn <= 0 {
					expiresIn = st.cfg.Gate.JWT.AccessTTL
				}
				return printJSON(cmd.OutOrStdout(), tokenView{
					AccessToken: token,
					ExpiresIn:   expiresIn.String(),
					Principal:   p,
				})
			})
		},
	}
	cmd.Flags().StringVar(&principal, "principal", "", "principal id")
	cmd.Flags().DurationVar(&ttl, "ttl", 0, "token lifetime; 0 uses jwt.access_ttl")
	cmd.Flags().StringArrayVar(&attrs, "attr", nil, "principal attribute as key=value, repeatable")
	_ = cmd.MarkFlagRequired("principal")
	return cmd
}

func parsePrincipal(id string, attrs []string) (goGate.Principal, error) {
	p := goGate.Principal{ID: strings.TrimSpace(id)}
	if p.ID == "" {
		return p, errors.New("--principal must not be empty")
	}
	for _, a := range attrs {
		k, v, ok := strings.Cut(a, "=")
		if !ok || k == "" {
			return p, fmt.Errorf("--attr %q: want key=value", a)
		}
		if p.Attributes == nil {
			p.Attributes = make(map[string]string, len(attrs))
		}
		p.Attributes[k] = v
	}
	return p, nil
}
