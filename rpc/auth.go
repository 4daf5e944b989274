package rpc

import (
	"crypto/ecdsa"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	ethcrypto "github.com/ethereum/go-ethereum/crypto"

	"escrowswap/observability/logging"
)

// MaxDeadlineWindow bounds how far in the future a signed request may set its
// deadline.
const MaxDeadlineWindow = 15 * time.Minute

// SignedEnvelope wraps the payload of a mutating call. Signature is the
// 65-byte secp256k1 signature over keccak256(method || ":" || payload) in
// 0x-prefixed hex, where payload is the exact JSON text carried in Payload.
type SignedEnvelope struct {
	Payload   json.RawMessage `json:"payload"`
	Signature string          `json:"signature"`
}

type deadlineField struct {
	Deadline int64 `json:"deadline"`
}

// RequestDigest returns the hash a caller signs for method and payload.
func RequestDigest(method string, payload []byte) []byte {
	return ethcrypto.Keccak256([]byte(method), []byte(":"), payload)
}

// SignRequest builds the envelope for method with payload signed by key. The
// payload must carry a deadline field.
func SignRequest(key *ecdsa.PrivateKey, method string, payload interface{}) (*SignedEnvelope, error) {
	if key == nil {
		return nil, errors.New("rpc: signing key required")
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("rpc: encode payload: %w", err)
	}
	sig, err := ethcrypto.Sign(RequestDigest(method, raw), key)
	if err != nil {
		return nil, fmt.Errorf("rpc: sign: %w", err)
	}
	return &SignedEnvelope{Payload: raw, Signature: "0x" + hex.EncodeToString(sig)}, nil
}

// signedCall is a verified mutating request.
type signedCall struct {
	caller  [20]byte
	payload json.RawMessage
	digest  [32]byte
}

// verifyEnvelope recovers the signer of a mutating call and enforces the
// deadline window and the replay guard.
func (s *Server) verifyEnvelope(method string, params []json.RawMessage) (call *signedCall, rpcErr *RPCError) {
	var (
		caller [20]byte
		env    SignedEnvelope
	)
	defer func() {
		if rpcErr != nil {
			s.logger.Info("envelope rejected",
				slog.String("method", method),
				slog.String("reason", rpcErr.Message),
				logging.MaskField("signature", env.Signature))
		}
	}()
	if len(params) != 1 {
		return nil, invalidParams("invalid_params", "exactly one signed envelope expected")
	}
	if err := json.Unmarshal(params[0], &env); err != nil {
		return nil, invalidParams("invalid_params", err.Error())
	}
	if len(env.Payload) == 0 || strings.TrimSpace(env.Signature) == "" {
		return nil, unauthorized("signature_required", "payload and signature are required")
	}
	sig, err := decodeHex(env.Signature)
	if err != nil {
		return nil, unauthorized("invalid_signature", err.Error())
	}
	if len(sig) != 65 {
		return nil, unauthorized("invalid_signature", "signature must be 65 bytes")
	}
	if sig[64] >= 27 {
		sig[64] -= 27
	}
	digest := RequestDigest(method, env.Payload)
	pubKey, err := ethcrypto.SigToPub(digest, sig)
	if err != nil {
		return nil, unauthorized("invalid_signature", err.Error())
	}
	copy(caller[:], ethcrypto.PubkeyToAddress(*pubKey).Bytes())

	var dl deadlineField
	if err := json.Unmarshal(env.Payload, &dl); err != nil {
		return nil, invalidParams("invalid_params", err.Error())
	}
	now := s.now()
	if dl.Deadline < now.Unix() {
		return nil, unauthorized("deadline_expired", nil)
	}
	if dl.Deadline > now.Add(MaxDeadlineWindow).Unix() {
		return nil, unauthorized("deadline_too_far", fmt.Sprintf("deadline must be within %s", MaxDeadlineWindow))
	}
	call = &signedCall{caller: caller, payload: env.Payload}
	copy(call.digest[:], digest)
	if !s.replay.accept(call.digest, dl.Deadline, now.Unix()) {
		s.metrics.RecordThrottle(moduleName, "replay")
		return nil, &RPCError{Code: codeReplay, Message: "request_replayed", status: http.StatusConflict}
	}
	return call, nil
}

func unauthorized(message string, data interface{}) *RPCError {
	return &RPCError{Code: codeUnauthorized, Message: message, Data: data, status: http.StatusUnauthorized}
}

// replayGuard remembers accepted request digests until their deadline passes.
type replayGuard struct {
	mu        sync.Mutex
	seen      map[[32]byte]int64
	lastPrune int64
}

func newReplayGuard() *replayGuard {
	return &replayGuard{seen: make(map[[32]byte]int64)}
}

func (g *replayGuard) accept(digest [32]byte, deadline, now int64) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	if now-g.lastPrune >= 60 {
		for k, exp := range g.seen {
			if exp < now {
				delete(g.seen, k)
			}
		}
		g.lastPrune = now
	}
	if _, ok := g.seen[digest]; ok {
		return false
	}
	g.seen[digest] = deadline
	return true
}

// release forgets digest so a request rejected for a retryable reason can be
// submitted again unchanged.
func (g *replayGuard) release(digest [32]byte) {
	g.mu.Lock()
	delete(g.seen, digest)
	g.mu.Unlock()
}

func decodeHex(value string) ([]byte, error) {
	cleaned := strings.TrimSpace(value)
	cleaned = strings.TrimPrefix(strings.TrimPrefix(cleaned, "0x"), "0X")
	return hex.DecodeString(cleaned)
}
