package validate

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/fergidotcom/reference-refinement-sub003/internal/refstore"
)

func newTestValidator(t *testing.T) *Validator {
	t.Helper()
	return &Validator{HTTPClient: newHTTPClient(), Concurrency: 2, TopK: 20}
}

func TestValidate_OKForAccessibleContentWithTitleMatch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("<html><body>Science and Human Behavior by Skinner, full text available here.</body></html>"))
	}))
	defer srv.Close()

	ref := &refstore.Reference{Title: "Science and Human Behavior"}
	candidates := []refstore.Candidate{{URL: srv.URL}}

	v := newTestValidator(t)
	out, err := v.Validate(context.Background(), ref, candidates)
	require.NoError(t, err)
	require.NotNil(t, out[0].Validation)
	require.Equal(t, refstore.StatusOK, out[0].Validation.Status)
}

func TestValidate_HTTPErrorForNonOKStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	ref := &refstore.Reference{Title: "Anything"}
	candidates := []refstore.Candidate{{URL: srv.URL}}

	v := newTestValidator(t)
	out, err := v.Validate(context.Background(), ref, candidates)
	require.NoError(t, err)
	require.Equal(t, refstore.StatusHTTPError, out[0].Validation.Status)
}

func TestValidate_PaywallPatternDetected(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("<html><body>Subscribe to continue reading this article.</body></html>"))
	}))
	defer srv.Close()

	ref := &refstore.Reference{Title: "Judgment under uncertainty"}
	candidates := []refstore.Candidate{{URL: srv.URL}}

	v := newTestValidator(t)
	out, _ := v.Validate(context.Background(), ref, candidates)
	require.Equal(t, refstore.StatusPaywall, out[0].Validation.Status)
	require.Equal(t, 50, out[0].Validation.Confidence)
}

func TestValidate_SoftNotFoundDetected(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("<html><body>Sorry, the page you requested could not be found.</body></html>"))
	}))
	defer srv.Close()

	ref := &refstore.Reference{Title: "Imagined Communities"}
	candidates := []refstore.Candidate{{URL: srv.URL}}

	v := newTestValidator(t)
	out, _ := v.Validate(context.Background(), ref, candidates)
	require.Equal(t, refstore.StatusSoft404, out[0].Validation.Status)
}

func TestValidate_ContentTypeMismatchForPDFPathServingHTML(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		w.Write([]byte("<html><body>not a pdf</body></html>"))
	}))
	defer srv.Close()

	ref := &refstore.Reference{Title: "Whatever"}
	candidates := []refstore.Candidate{{URL: srv.URL + "/paper.pdf"}}

	v := newTestValidator(t)
	out, _ := v.Validate(context.Background(), ref, candidates)
	require.Equal(t, refstore.StatusContentTypeMismatch, out[0].Validation.Status)
	require.Equal(t, 15, out[0].Validation.Confidence)
}

func TestValidate_OnlyValidatesTopK(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("hello"))
	}))
	defer srv.Close()

	var candidates []refstore.Candidate
	for i := 0; i < 5; i++ {
		candidates = append(candidates, refstore.Candidate{URL: srv.URL})
	}
	v := newTestValidator(t)
	v.TopK = 2
	ref := &refstore.Reference{Title: "x"}
	out, err := v.Validate(context.Background(), ref, candidates)
	require.NoError(t, err)
	require.NotNil(t, out[0].Validation)
	require.NotNil(t, out[1].Validation)
	require.Nil(t, out[2].Validation)
}

func TestIsTier1_MatchesKnownDomains(t *testing.T) {
	require.True(t, isTier1("archive.org"))
	require.True(t, isTier1("cs.stanford.edu"))
	require.True(t, isTier1("www.nih.gov"))
	require.False(t, isTier1("example.com"))
}
