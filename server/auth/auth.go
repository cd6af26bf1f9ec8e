// server/auth/auth.go
package auth

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/golang-jwt/jwt/v5"
	"github.com/rs/zerolog"
	"golang.org/x/crypto/sha3"
)

const (
	nonceTTL = 5 * time.Minute
	tokenTTL = 24 * time.Hour
)

var (
	ErrMissingToken = errors.New("missing token")
	ErrInvalidToken = errors.New("invalid token")
	ErrUnknownNonce = errors.New("unknown or expired nonce")
	ErrBadSignature = errors.New("signature does not match address")
)

type nonceEntry struct {
	value   string
	expires time.Time
}

// Auth binds wallets to sessions: a client signs a one-time nonce with its
// wallet and gets back a JWT whose subject is the wallet address.
type Auth struct {
	log    zerolog.Logger
	jwtKey []byte
	issuer string
	now    func() time.Time

	mu     sync.Mutex
	nonces map[common.Address]nonceEntry
}

// NewAuth uses secret as the HMAC key; an empty secret gets a random one,
// which invalidates tokens on restart.
func NewAuth(secret []byte, log zerolog.Logger) *Auth {
	key := secret
	if len(key) < 32 {
		key = make([]byte, 32)
		_, _ = rand.Read(key)
	}
	return &Auth{
		log:    log.With().Str("component", "auth").Logger(),
		jwtKey: key,
		issuer: "crypto-jumper",
		now:    time.Now,
		nonces: make(map[common.Address]nonceEntry),
	}
}

// LoginMessage is the exact text the wallet signs.
func LoginMessage(nonce string) string {
	return "crypto-jumper login: " + nonce
}

// Nonce issues a fresh nonce for address, replacing any outstanding one.
func (a *Auth) Nonce(address common.Address) string {
	b := make([]byte, 16)
	_, _ = rand.Read(b)
	n := hex.EncodeToString(b)

	a.mu.Lock()
	a.nonces[address] = nonceEntry{value: n, expires: a.now().Add(nonceTTL)}
	a.mu.Unlock()
	return n
}

// Login verifies the signature over the outstanding nonce and returns a token.
// The nonce is consumed whether or not the signature matches.
func (a *Auth) Login(address common.Address, signature []byte) (string, error) {
	a.mu.Lock()
	entry, ok := a.nonces[address]
	delete(a.nonces, address)
	a.mu.Unlock()
	if !ok || a.now().After(entry.expires) {
		return "", ErrUnknownNonce
	}

	signer, err := RecoverAddress(LoginMessage(entry.value), signature)
	if err != nil {
		return "", err
	}
	if signer != address {
		return "", ErrBadSignature
	}

	claims := jwt.MapClaims{
		"sub": address.Hex(),
		"iss": a.issuer,
		"iat": a.now().Unix(),
		"exp": a.now().Add(tokenTTL).Unix(),
	}
	t := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := t.SignedString(a.jwtKey)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return signed, nil
}

// TextHash is the EIP-191 personal_sign digest of msg.
func TextHash(msg string) []byte {
	h := sha3.NewLegacyKeccak256()
	fmt.Fprintf(h, "\x19Ethereum Signed Message:\n%d%s", len(msg), msg)
	return h.Sum(nil)
}

// RecoverAddress returns the wallet that produced a personal_sign signature.
func RecoverAddress(msg string, signature []byte) (common.Address, error) {
	if len(signature) != crypto.SignatureLength {
		return common.Address{}, fmt.Errorf("signature length %d: %w", len(signature), ErrBadSignature)
	}
	sig := make([]byte, len(signature))
	copy(sig, signature)
	// wallets send v as 27/28
	if sig[crypto.RecoveryIDOffset] >= 27 {
		sig[crypto.RecoveryIDOffset] -= 27
	}
	pub, err := crypto.SigToPub(TextHash(msg), sig)
	if err != nil {
		return common.Address{}, fmt.Errorf("recover signer: %w", err)
	}
	return crypto.PubkeyToAddress(*pub), nil
}

type NonceResp struct {
	Nonce   string `json:"nonce"`
	Message string `json:"message"`
}

func (a *Auth) HandleNonce(w http.ResponseWriter, r *http.Request) {
	addr := r.URL.Query().Get("address")
	if !common.IsHexAddress(addr) {
		http.Error(w, "invalid address", http.StatusBadRequest)
		return
	}
	n := a.Nonce(common.HexToAddress(addr))
	_ = json.NewEncoder(w).Encode(NonceResp{Nonce: n, Message: LoginMessage(n)})
}

type LoginReq struct {
	Address   string `json:"address"`
	Signature string `json:"signature"`
}
type LoginResp struct {
	Token   string `json:"token"`
	Address string `json:"address"`
}

func (a *Auth) HandleLogin(w http.ResponseWriter, r *http.Request) {
	var req LoginReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json", http.StatusBadRequest)
		return
	}
	if !common.IsHexAddress(req.Address) {
		http.Error(w, "invalid address", http.StatusBadRequest)
		return
	}
	sig, err := hexutil.Decode(req.Signature)
	if err != nil {
		http.Error(w, "invalid signature encoding", http.StatusBadRequest)
		return
	}
	address := common.HexToAddress(req.Address)
	token, err := a.Login(address, sig)
	if err != nil {
		a.log.Info().Err(err).Str("address", address.Hex()).Msg("login rejected")
		http.Error(w, "invalid credentials", http.StatusUnauthorized)
		return
	}
	a.log.Info().Str("address", address.Hex()).Msg("login")
	_ = json.NewEncoder(w).Encode(LoginResp{Token: token, Address: address.Hex()})
}

// ParseToken returns the checksummed wallet address the token was issued for.
func (a *Auth) ParseToken(tok string) (string, error) {
	if tok == "" {
		return "", ErrMissingToken
	}
	t, err := jwt.Parse(tok, func(t *jwt.Token) (interface{}, error) {
		return a.jwtKey, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithIssuer(a.issuer))
	if err != nil || !t.Valid {
		return "", ErrInvalidToken
	}
	if claims, ok := t.Claims.(jwt.MapClaims); ok {
		if sub, ok := claims["sub"].(string); ok && common.IsHexAddress(sub) {
			return sub, nil
		}
	}
	return "", errors.New("bad claims")
}

// TokenFromRequest reads a bearer header or ?token= query parameter.
func TokenFromRequest(r *http.Request) string {
	if h := r.Header.Get("Authorization"); strings.HasPrefix(h, "Bearer ") {
		return strings.TrimPrefix(h, "Bearer ")
	}
	return r.URL.Query().Get("token")
}

type walletKey struct{}

// WalletFromContext returns the wallet RequireAuth stored, "" if none.
func WalletFromContext(ctx context.Context) string {
	w, _ := ctx.Value(walletKey{}).(string)
	return w
}

// Use this for protecting REST endpoints.
func (a *Auth) RequireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		wallet, err := a.ParseToken(TokenFromRequest(r))
		if err != nil || wallet == "" {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), walletKey{}, wallet)))
	})
}
