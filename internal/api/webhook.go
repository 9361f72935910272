package api

import (
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/golang-jwt/jwt/v5"
)

// SignatureHeader carries the webhook signature JWT.
const SignatureHeader = "X-Dt-Signature"

// checksumClaim holds the hex SHA-256 of the request body.
const checksumClaim = "checksum_sha256"

var (
	errMissingSignature = errors.New("missing signature")
	errChecksumMismatch = errors.New("body checksum mismatch")
)

// handleEvent applies one webhook delivery. Any successful handling,
// including events for unknown devices, answers 200.
func (s *Server) handleEvent(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, ErrCodeTooLarge, "request body too large")
			return
		}
		writeBadRequest(w, "failed to read request body")
		return
	}

	if s.webhookCfg.SignatureSecret != "" {
		if err := verifySignature(s.webhookCfg.SignatureSecret, r.Header.Get(SignatureHeader), body); err != nil {
			webhookRejections.WithLabelValues("signature").Inc()
			s.logger.Warn("webhook signature rejected",
				"error", err,
				"request_id", r.Context().Value(ctxKeyRequestID),
			)
			writeUnauthorized(w, "invalid signature")
			return
		}
	}

	result, err := s.events.Handle(r.Context(), body)
	if err != nil {
		webhookRejections.WithLabelValues("event").Inc()
		writeBadRequest(w, err.Error())
		return
	}

	s.logger.Debug("webhook event handled",
		"target", result.TargetID,
		"event_type", result.EventType,
		"known", result.Known,
		"applied", result.Applied,
	)
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// verifySignature checks an HS256 JWT signed with secret whose
// checksum_sha256 claim matches the body.
func verifySignature(secret, header string, body []byte) error {
	if header == "" {
		return errMissingSignature
	}

	claims := jwt.MapClaims{}
	_, err := jwt.ParseWithClaims(header, claims, func(*jwt.Token) (any, error) {
		return []byte(secret), nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		return fmt.Errorf("parsing signature: %w", err)
	}

	claimed, _ := claims[checksumClaim].(string) //nolint:errcheck // missing claim fails the compare below
	sum := sha256.Sum256(body)
	expected := hex.EncodeToString(sum[:])
	if subtle.ConstantTimeCompare([]byte(claimed), []byte(expected)) != 1 {
		return errChecksumMismatch
	}
	return nil
}
