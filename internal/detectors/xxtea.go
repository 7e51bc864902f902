// Package detectors recognizes known cryptographic calls among the call
// findings of an annotated listing and recovers their keys.
package detectors

import (
	"fmt"
	"strings"

	"roach/internal/analysis"
)

// XXTEADetector detects XXTEA key setters and decrypt calls. Key setters
// take (key, keyLen[, sign, signLen]) on the stack; xxtea_decrypt takes
// (data, dataLen, key, keyLen, outLen).
type XXTEADetector struct{}

// NewXXTEADetector creates a new XXTEA detector instance.
func NewXXTEADetector() *XXTEADetector {
	return &XXTEADetector{}
}

func (d *XXTEADetector) Detect(findings []analysis.CallFinding) []analysis.CallFinding {
	result := make([]analysis.CallFinding, 0, len(findings))
	for _, finding := range findings {
		name := strings.ToLower(finding.Name())
		switch {
		case d.isXXTEASetter(name):
			finding = d.resolveSetter(finding)
		case strings.Contains(name, "xxtea_decrypt") || strings.Contains(name, "xxtea_encrypt"):
			finding = d.resolveCipherCall(finding)
		}
		result = append(result, finding)
	}
	return result
}

func (d *XXTEADetector) isXXTEASetter(lower string) bool {
	xxteaSetters := []string{
		"setxxteakey",
		"setxxteasign",
		"setxxteakeyandsign",
		"jsb_set_xxtea_key",
		"addcryptokey",
		"editcryptokey",
	}
	for _, setter := range xxteaSetters {
		if strings.Contains(lower, setter) {
			return true
		}
	}

	hasAction := strings.Contains(lower, "set") ||
		strings.Contains(lower, "add") ||
		strings.Contains(lower, "edit")
	hasTarget := strings.Contains(lower, "xxtea") ||
		strings.Contains(lower, "cryptokey")
	return hasAction && hasTarget
}

// signatureType classifies a setter by the argument kinds it received.
func (d *XXTEADetector) signatureType(f analysis.CallFinding) string {
	key, hasKey := stringArg(f, 0)
	keyLen, hasKeyLen := intArg(f, 1)
	_, hasSign := stringArg(f, 2)
	signLen, hasSignLen := intArg(f, 3)

	switch {
	case (hasKey || (hasKeyLen && keyLen > 0)) && hasSign && hasSignLen && signLen > 0:
		return "key+sign"
	case hasKey && hasKeyLen && keyLen > 0:
		return "key-only"
	case hasKey && key != "":
		return "key"
	}
	return "unknown"
}

func (d *XXTEADetector) resolveSetter(f analysis.CallFinding) analysis.CallFinding {
	sig := d.signatureType(f)
	meta := metadata(&f)
	meta["algorithm"] = "xxtea"
	meta["signature_type"] = sig

	var parts []string
	switch sig {
	case "key+sign":
		parts = append(parts, d.field(f, meta, "key", 0, 1), d.field(f, meta, "sign", 2, 3))
	case "key-only":
		parts = append(parts, d.field(f, meta, "key", 0, 1))
	case "key":
		parts = append(parts, d.field(f, meta, "key", 0, -1))
	default:
		parts = append(parts, "key=(unknown)")
	}
	f.Comment = "xxtea " + strings.Join(parts, ", ")
	return f
}

func (d *XXTEADetector) resolveCipherCall(f analysis.CallFinding) analysis.CallFinding {
	meta := metadata(&f)
	meta["algorithm"] = "xxtea"
	meta["signature_type"] = "cipher"
	f.Comment = "xxtea " + d.field(f, meta, "key", 2, 3)
	return f
}

// field records the string in slot s and the length in slot n (n < 0 when
// the call has no length) and renders them for the comment.
func (d *XXTEADetector) field(f analysis.CallFinding, meta map[string]any, name string, s, n int) string {
	str, ok := stringArg(f, s)
	if ok {
		meta[name] = str
		meta[name+"_len"] = int64(len(str))
	}
	var length int64
	if n >= 0 {
		if v, ok := intArg(f, n); ok {
			length = v
			meta[name+"_len"] = v
		}
	}
	switch {
	case ok && str == "":
		return name + "=(empty)"
	case ok && length > 0 && length < int64(len(str)):
		// The length argument wins over the NUL terminator.
		meta[name] = str[:length]
		return name + "=" + str[:length]
	case ok:
		return name + "=" + str
	case length > 0:
		return fmt.Sprintf("%s=(unknown,len=%d)", name, length)
	}
	return name + "=(unknown)"
}

func metadata(f *analysis.CallFinding) map[string]any {
	if f.Metadata == nil {
		f.Metadata = make(map[string]any)
	}
	return f.Metadata
}

func stringArg(f analysis.CallFinding, slot int) (string, bool) {
	a, ok := f.Arg(slot)
	if !ok {
		return "", false
	}
	s, ok := a.Value.(string)
	return s, ok
}

func intArg(f analysis.CallFinding, slot int) (int64, bool) {
	a, ok := f.Arg(slot)
	if !ok {
		return 0, false
	}
	v, ok := a.Value.(int64)
	return v, ok
}
