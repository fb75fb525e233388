package service

import (
	"bytes"
	"crypto/ed25519"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"log/slog"
	"regexp"
	"strconv"
	"strings"

	"github.com/ethereum/go-ethereum/crypto"
	"github.com/hashgraph/hedera-sdk-go/v2"
	"golang.org/x/crypto/sha3"
	"google.golang.org/protobuf/encoding/protowire"
)

// Scheme selects how a wallet signature is verified
type Scheme string

const (
	// SchemeNativeKey verifies an Ed25519 signature against a claimed account key
	SchemeNativeKey Scheme = "native_key"
	// SchemeRecoverableAddress recovers a secp256k1 signer and compares addresses
	SchemeRecoverableAddress Scheme = "recoverable_address"
)

// RejectReason explains a failed verification
type RejectReason string

const (
	ReasonUndecodableSignature RejectReason = "undecodable_signature"
	ReasonInvalidPublicKey     RejectReason = "invalid_public_key"
	ReasonNoMatchingKey        RejectReason = "no_matching_key"
	ReasonSignatureMismatch    RejectReason = "signature_mismatch"
	ReasonMalformedSignature   RejectReason = "malformed_signature"
	ReasonInvalidAddress       RejectReason = "invalid_address"
	ReasonRecoveryFailed       RejectReason = "recovery_failed"
	ReasonAddressMismatch      RejectReason = "address_mismatch"
	ReasonNoScheme             RejectReason = "no_scheme"
)

// Verdict is the outcome of a signature check
type Verdict struct {
	Verified bool
	Reason   RejectReason
}

func accept() Verdict { return Verdict{Verified: true} }
func reject(reason RejectReason) Verdict { return Verdict{Reason: reason} }

// SignatureRequest carries a signed challenge and the claimed signer
type SignatureRequest struct {
	Message    string
	Signature  string
	PublicKey  string
	EVMAddress string
}

// Scheme returns the scheme selected by which identity field is present
func (r SignatureRequest) Scheme() (Scheme, bool) {
	switch {
	case r.PublicKey != "" && r.EVMAddress == "":
		return SchemeNativeKey, true
	case r.EVMAddress != "" && r.PublicKey == "":
		return SchemeRecoverableAddress, true
	default:
		return "", false
	}
}

const ed25519SignatureSize = ed25519.SignatureSize

var recoverableSignaturePattern = regexp.MustCompile(`^0x[0-9a-fA-F]{130}$`)

// SignatureVerifier checks wallet signatures. It never panics on hostile
// input; every failure becomes a Verdict.
type SignatureVerifier struct {
	logger *slog.Logger
}

// NewSignatureVerifier creates a verifier logging rejections to logger
func NewSignatureVerifier(logger *slog.Logger) *SignatureVerifier {
	if logger == nil {
		logger = slog.Default()
	}
	return &SignatureVerifier{logger: logger}
}

// Verify dispatches to the scheme selected by the request
func (v *SignatureVerifier) Verify(req SignatureRequest) Verdict {
	scheme, ok := req.Scheme()
	if !ok {
		return v.log("", reject(ReasonNoScheme))
	}
	if scheme == SchemeNativeKey {
		return v.log(scheme, v.VerifyNative(req.Message, req.Signature, req.PublicKey))
	}
	return v.log(scheme, v.VerifyRecoverable(req.Message, req.Signature, req.EVMAddress))
}

func (v *SignatureVerifier) log(scheme Scheme, verdict Verdict) Verdict {
	if !verdict.Verified {
		v.logger.Debug("signature rejected",
			slog.String("scheme", string(scheme)),
			slog.String("reason", string(verdict.Reason)))
	}
	return verdict
}

// VerifyNative checks an Ed25519 signature over the UTF-8 message bytes.
// The signature may be base64, hex or raw, and may be a bare 64-byte
// signature or a serialized SignatureMap as produced by wallet extensions.
func (v *SignatureVerifier) VerifyNative(message, signature, publicKey string) (verdict Verdict) {
	defer func() {
		if r := recover(); r != nil {
			verdict = reject(ReasonSignatureMismatch)
		}
	}()

	key, err := hedera.PublicKeyFromStringEd25519(strings.TrimPrefix(publicKey, "0x"))
	if err != nil {
		return reject(ReasonInvalidPublicKey)
	}
	raw := key.BytesRaw()
	if len(raw) != ed25519.PublicKeySize {
		return reject(ReasonInvalidPublicKey)
	}

	sigs, reason := nativeSignatureCandidates(signature, raw)
	if len(sigs) == 0 {
		return reject(reason)
	}
	for _, sig := range sigs {
		if ed25519.Verify(ed25519.PublicKey(raw), []byte(message), sig) {
			return accept()
		}
	}
	return reject(ReasonSignatureMismatch)
}

// nativeSignatureCandidates decodes the signature as base64, hex and the raw
// string, in that order, and returns every Ed25519 signature for pubKey the
// decodings yield. A hex string is also valid base64.
func nativeSignatureCandidates(signature string, pubKey []byte) ([][]byte, RejectReason) {
	var decoded [][]byte
	if b, err := base64.StdEncoding.DecodeString(signature); err == nil {
		decoded = append(decoded, b)
	}
	if b, err := hex.DecodeString(strings.TrimPrefix(signature, "0x")); err == nil {
		decoded = append(decoded, b)
	}
	decoded = append(decoded, []byte(signature))

	var sigs [][]byte
	reason := ReasonUndecodableSignature
	for _, c := range decoded {
		switch {
		case len(c) == ed25519SignatureSize:
			sigs = append(sigs, c)
		case len(c) > ed25519SignatureSize:
			sig, err := ed25519FromSignatureMap(c, pubKey)
			if err == nil {
				sigs = append(sigs, sig)
			} else if errors.Is(err, errNoMatchingKey) {
				reason = ReasonNoMatchingKey
			}
		}
	}
	return sigs, reason
}

var (
	errMalformedSignatureMap = errors.New("malformed signature map")
	errNoMatchingKey         = errors.New("no signature for key")
)

// SignatureMap and SignaturePair field numbers
const (
	sigMapPairField     protowire.Number = 1
	sigPairPrefixField  protowire.Number = 1
	sigPairEd25519Field protowire.Number = 3
)

type signaturePair struct {
	prefix  []byte
	ed25519 []byte
}

// ed25519FromSignatureMap decodes a SignatureMap and returns the Ed25519
// signature whose public-key prefix matches pubKey
func ed25519FromSignatureMap(b []byte, pubKey []byte) ([]byte, error) {
	pairs, err := parseSignatureMap(b)
	if err != nil {
		return nil, err
	}
	for _, p := range pairs {
		if len(p.ed25519) != ed25519SignatureSize {
			continue
		}
		if bytes.HasPrefix(pubKey, p.prefix) {
			return p.ed25519, nil
		}
	}
	return nil, errNoMatchingKey
}

func parseSignatureMap(b []byte) ([]signaturePair, error) {
	var pairs []signaturePair
	err := walkFields(b, func(num protowire.Number, typ protowire.Type, v []byte) error {
		if num != sigMapPairField || typ != protowire.BytesType {
			return nil
		}
		var p signaturePair
		err := walkFields(v, func(num protowire.Number, typ protowire.Type, v []byte) error {
			if typ != protowire.BytesType {
				return nil
			}
			switch num {
			case sigPairPrefixField:
				p.prefix = v
			case sigPairEd25519Field:
				p.ed25519 = v
			}
			return nil
		})
		if err != nil {
			return err
		}
		pairs = append(pairs, p)
		return nil
	})
	if err != nil {
		return nil, err
	}
	if len(pairs) == 0 {
		return nil, errMalformedSignatureMap
	}
	return pairs, nil
}

// walkFields calls fn for every top-level field of a protobuf message.
// Length-delimited values are passed through; other values are skipped.
func walkFields(b []byte, fn func(protowire.Number, protowire.Type, []byte) error) error {
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return errMalformedSignatureMap
		}
		b = b[n:]

		if typ == protowire.BytesType {
			v, n := protowire.ConsumeBytes(b)
			if n < 0 {
				return errMalformedSignatureMap
			}
			if err := fn(num, typ, v); err != nil {
				return err
			}
			b = b[n:]
			continue
		}

		n = protowire.ConsumeFieldValue(num, typ, b)
		if n < 0 {
			return errMalformedSignatureMap
		}
		if err := fn(num, typ, nil); err != nil {
			return err
		}
		b = b[n:]
	}
	return nil
}

// VerifyRecoverable recovers the signer of an Ethereum personal-message
// signature and compares it to address case-insensitively
func (v *SignatureVerifier) VerifyRecoverable(message, signature, address string) (verdict Verdict) {
	defer func() {
		if r := recover(); r != nil {
			verdict = reject(ReasonRecoveryFailed)
		}
	}()

	if !IsEVMAddress(address) {
		return reject(ReasonInvalidAddress)
	}
	if !recoverableSignaturePattern.MatchString(signature) {
		return reject(ReasonMalformedSignature)
	}

	sig, err := hex.DecodeString(signature[2:])
	if err != nil {
		return reject(ReasonMalformedSignature)
	}
	if sig[64] >= 27 {
		sig[64] -= 27
	}
	if sig[64] > 1 {
		return reject(ReasonMalformedSignature)
	}

	pub, err := crypto.SigToPub(PersonalMessageHash(message), sig)
	if err != nil {
		return reject(ReasonRecoveryFailed)
	}
	recovered := crypto.PubkeyToAddress(*pub).Hex()
	if !strings.EqualFold(recovered, address) {
		return reject(ReasonAddressMismatch)
	}
	return accept()
}

// PersonalMessageHash is the Keccak-256 digest wallets sign for personal_sign
func PersonalMessageHash(message string) []byte {
	h := sha3.NewLegacyKeccak256()
	h.Write([]byte("\x19Ethereum Signed Message:\n" + strconv.Itoa(len(message))))
	h.Write([]byte(message))
	return h.Sum(nil)
}
