package goGate

import (
	"errors"
	"math"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func noopPre(*RequestContext) error { return nil }

func noopErr(_ *RequestContext, err error) error { return err }

func stepNames(descs []Descriptor) string {
	names := make([]string, 0, len(descs))
	for _, d := range descs {
		names = append(names, d.Name)
	}
	return strings.Join(names, ",")
}

func TestAssembleSortsAndPartitions(t *testing.T) {
	p, err := Assemble(
		Pre("c", 30, noopPre),
		OnError("render", Last, noopErr),
		Pre("a", 10, noopPre),
		OnError("map", 5, noopErr),
		Pre("first", First, noopPre),
		Pre("b", 20, noopPre),
	)
	if err != nil {
		t.Fatalf("assemble: %v", err)
	}
	if got := stepNames(p.PreSteps()); got != "first,a,b,c" {
		t.Fatalf("unexpected pre order %s", got)
	}
	if got := stepNames(p.ErrorSteps()); got != "map,render" {
		t.Fatalf("unexpected error order %s", got)
	}

	// copies, not views
	steps := p.PreSteps()
	steps[0].Name = "mutated"
	if p.PreSteps()[0].Name != "first" {
		t.Fatal("PreSteps exposed internal state")
	}
}

func TestAssembleRejectsSharedOrder(t *testing.T) {
	_, err := Assemble(Pre("alpha", 10, noopPre), OnError("beta", 10, noopErr))
	if !errors.Is(err, ErrConfiguration) {
		t.Fatalf("expected configuration error, got %v", err)
	}
	if !strings.Contains(err.Error(), "alpha") || !strings.Contains(err.Error(), "beta") {
		t.Fatalf("error must name both descriptors: %v", err)
	}
}

func TestAssembleRejectsInvalidDescriptors(t *testing.T) {
	cases := []struct {
		name string
		desc []Descriptor
		want string
	}{
		{"undefined order", []Descriptor{Pre("x", math.NaN(), noopPre)}, "order is not defined"},
		{"no step", []Descriptor{{Name: "x", Order: 1}}, "not callable"},
		{"two steps", []Descriptor{{Name: "x", Order: 1, Pre: noopPre, OnError: noopErr}}, "ambiguous"},
		{"no name", []Descriptor{Pre("", 1, noopPre)}, "name is required"},
		{"repeated name", []Descriptor{Pre("x", 1, noopPre), Pre("x", 2, noopPre)}, "already used"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Assemble(tc.desc...)
			if !errors.Is(err, ErrConfiguration) {
				t.Fatalf("expected configuration error, got %v", err)
			}
			if !strings.Contains(err.Error(), tc.want) {
				t.Fatalf("expected %q in %v", tc.want, err)
			}
		})
	}
}

func TestPipelineWithoutResolutionIsNotFound(t *testing.T) {
	p, err := Assemble(Pre("noop", 1, noopPre))
	if err != nil {
		t.Fatal(err)
	}
	rec := httptest.NewRecorder()
	p.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/anything", nil))
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
}

func TestErrorStepsReplaceAndStop(t *testing.T) {
	var seen []string
	p, err := Assemble(
		Pre("fail", 1, func(*RequestContext) error { return ErrForbidden }),
		OnError("rewrite", 10, func(_ *RequestContext, err error) error {
			seen = append(seen, "rewrite:"+err.Error())
			return ErrRouteNotFound
		}),
		OnError("keep", 20, func(_ *RequestContext, err error) error {
			seen = append(seen, "keep:"+err.Error())
			return nil
		}),
		OnError("write", 30, func(rc *RequestContext, err error) error {
			seen = append(seen, "write:"+err.Error())
			rc.Writer.WriteHeader(http.StatusTeapot)
			return err
		}),
		OnError("never", 40, func(_ *RequestContext, err error) error {
			seen = append(seen, "never")
			return err
		}),
	)
	if err != nil {
		t.Fatal(err)
	}

	rec := httptest.NewRecorder()
	p.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/x", nil))
	if rec.Code != http.StatusTeapot {
		t.Fatalf("expected the error step's response, got %d", rec.Code)
	}
	want := "rewrite:forbidden,keep:route not found,write:route not found"
	if got := strings.Join(seen, ","); got != want {
		t.Fatalf("unexpected error step trail %s", got)
	}
}

func TestPreStepPanicIsRecovered(t *testing.T) {
	p, err := Assemble(Pre("boom", 1, func(*RequestContext) error { panic(errors.New("bad step")) }))
	if err != nil {
		t.Fatal(err)
	}
	rec := httptest.NewRecorder()
	p.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/x", nil))
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "bad step") {
		t.Fatalf("expected the panic value in the trace: %s", rec.Body.String())
	}
}

func TestErrorStepPanicBecomesInternal(t *testing.T) {
	p, err := Assemble(
		Pre("fail", 1, func(*RequestContext) error { return ErrForbidden }),
		OnError("boom", 10, func(*RequestContext, error) error { panic("error step") }),
	)
	if err != nil {
		t.Fatal(err)
	}
	rec := httptest.NewRecorder()
	p.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/x", nil))
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("a panicking error step surfaces as internal error, got %d", rec.Code)
	}
}
