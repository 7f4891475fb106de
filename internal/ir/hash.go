package ir

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// Domain prefixes for content-addressed identity.
// The version suffix leaves room for algorithm migration.
const (
	DomainModel       = "qml/model/v1"
	DomainRun         = "qml/run/v1"
	DomainCalibration = "qml/calibration/v1"
)

// hashWithDomain computes SHA-256 with domain separation:
// SHA256(domain + 0x00 + data). The null byte prevents domain/data boundary
// ambiguity.
func hashWithDomain(domain string, data []byte) string {
	h := sha256.New()
	h.Write([]byte(domain))
	h.Write([]byte{0x00})
	h.Write(data)
	return hex.EncodeToString(h.Sum(nil))
}

// ComputeModelHash returns the content hash of m. The ModelHash field itself
// is excluded, so the hash is stable whether or not m has been stamped.
func ComputeModelHash(m *Model) (string, error) {
	canonical, err := canonicalModel(m)
	if err != nil {
		return "", fmt.Errorf("ComputeModelHash: %w", err)
	}
	return hashWithDomain(DomainModel, canonical), nil
}

// Stamp sets m.ModelHash to its computed hash.
func Stamp(m *Model) error {
	h, err := ComputeModelHash(m)
	if err != nil {
		return err
	}
	m.ModelHash = h
	return nil
}

// MustStamp is like Stamp but panics on error.
// Use only in tests or when inputs are known to be valid.
func MustStamp(m *Model) *Model {
	if err := Stamp(m); err != nil {
		panic(err)
	}
	return m
}

// VerifyHash reports an error when m.ModelHash does not match its content.
func VerifyHash(m *Model) error {
	h, err := ComputeModelHash(m)
	if err != nil {
		return err
	}
	if h != m.ModelHash {
		return &HashMismatchError{Stored: m.ModelHash, Computed: h}
	}
	return nil
}

// HashMismatchError is returned when an IR document was modified after its
// hash was computed.
type HashMismatchError struct {
	Stored   string
	Computed string
}

func (e *HashMismatchError) Error() string {
	return fmt.Sprintf("model hash mismatch: stored %s, computed %s", e.Stored, e.Computed)
}

func (e *HashMismatchError) Kind() string      { return "HashMismatchError" }
func (e *HashMismatchError) ErrorCode() string { return ErrCodeHash }

// RunDigest identifies the inputs of an execution: the model hash plus the
// execution settings that influence the result. Two runs with equal digests
// produce identical output.
func RunDigest(modelHash string, samples int, seed uint64) (string, error) {
	obj := IRObject{
		"model_hash": IRString(modelHash),
		"samples":    IRInt(samples),
		// seed is a uint64 and may exceed int64
		"seed": IRString(fmt.Sprintf("%d", seed)),
	}
	canonical, err := MarshalCanonical(obj)
	if err != nil {
		return "", fmt.Errorf("RunDigest: %w", err)
	}
	return hashWithDomain(DomainRun, canonical), nil
}

// CalibrationDigest identifies a calibration by its source model and the
// content hash of its input data.
func CalibrationDigest(sourceHash, dataHash string) string {
	canonical, _ := MarshalCanonical(IRObject{
		"data_hash":   IRString(dataHash),
		"source_hash": IRString(sourceHash),
	})
	return hashWithDomain(DomainCalibration, canonical)
}

// DataHash returns the SHA-256 of raw input bytes.
func DataHash(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

func canonicalModel(m *Model) ([]byte, error) {
	val, err := toValue(m)
	if err != nil {
		return nil, err
	}
	obj, ok := val.(IRObject)
	if !ok {
		return nil, fmt.Errorf("model did not encode as an object")
	}
	delete(obj, "model_hash")
	return MarshalCanonical(obj)
}
