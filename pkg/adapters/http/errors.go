package http

import (
	"errors"
	"net/http"

	"github.com/aretw0/tessera/internal/validator"
	"github.com/aretw0/tessera/pkg/domain"
	"github.com/aretw0/tessera/pkg/manifest"
	"github.com/aretw0/tessera/pkg/registry"
	"github.com/aretw0/tessera/pkg/schema"
)

// ErrorResponse is the body of every failed request.
type ErrorResponse struct {
	Error   string   `json:"error"`
	Details []string `json:"details,omitempty"`
}

type requestError struct {
	status int
	msg    string
}

func (e *requestError) Error() string { return e.msg }

func badRequest(msg string) error { return &requestError{status: http.StatusBadRequest, msg: msg} }

func notFound(what string) error {
	return &requestError{status: http.StatusNotFound, msg: domain.ErrBlockNotFound.Error() + ": " + what}
}

// statusFor maps registry errors onto HTTP statuses.
func statusFor(err error) int {
	var re *requestError
	switch {
	case errors.As(err, &re):
		return re.status
	case registry.IsNotFound(err), errors.Is(err, validator.ErrUnknownStep):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrDuplicateIdentity),
		errors.Is(err, domain.ErrGateNotMet),
		errors.Is(err, domain.ErrIllegalTransition):
		return http.StatusConflict
	case errors.Is(err, domain.ErrInvalidManifest),
		errors.Is(err, domain.ErrInvalidSignature),
		errors.Is(err, domain.ErrInvalidDelta),
		errors.Is(err, domain.ErrInvalidRef),
		errors.Is(err, domain.ErrUnknownRankingProfile),
		errors.Is(err, schema.ErrTypeSyntax),
		errors.Is(err, manifest.ErrInvalidGraph):
		return http.StatusBadRequest
	}
	return http.StatusInternalServerError
}

func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	resp := ErrorResponse{Error: err.Error()}

	var gate *domain.GateError
	var me *domain.ManifestError
	switch {
	case errors.As(err, &gate):
		resp.Details = gate.Missing
	case errors.As(err, &me):
		resp.Details = me.Problems
	}

	if status >= http.StatusInternalServerError {
		s.logger.Error("Request failed", "method", r.Method, "path", r.URL.Path, "err", err)
	} else {
		s.logger.Warn("Request rejected", "method", r.Method, "path", r.URL.Path, "status", status, "err", err)
	}
	s.writeJSON(w, status, resp)
}

func asWiringErrors(err error) (*domain.WiringErrors, bool) {
	var we *domain.WiringErrors
	ok := errors.As(err, &we)
	return we, ok
}
