package detectors

import (
	"fmt"
	"strings"

	"roach/internal/analysis"
)

// api describes a Windows import worth flagging.
type api struct {
	family string
	// names of the stack slots worth recording
	slots map[int]string
}

var windowsAPIs = map[string]api{
	"cryptacquirecontext": {family: "cryptoapi", slots: map[int]string{1: "container", 2: "provider"}},
	"cryptimportkey":      {family: "cryptoapi", slots: map[int]string{2: "blob_len"}},
	"cryptderivekey":      {family: "cryptoapi", slots: map[int]string{1: "alg_id"}},
	"cryptcreatehash":     {family: "cryptoapi", slots: map[int]string{1: "alg_id"}},
	"crypthashdata":       {family: "cryptoapi", slots: map[int]string{1: "data", 2: "data_len"}},
	"cryptdecrypt":        {family: "cryptoapi"},
	"cryptencrypt":        {family: "cryptoapi"},
	"bcryptdecrypt":       {family: "cng"},
	"rtldecompressbuffer": {family: "compression", slots: map[int]string{0: "format"}},
	"aplib_depack":        {family: "compression"},
	"ap_depack":           {family: "compression"},
	"ap_depack_safe":      {family: "compression"},
}

// algIDs names the CryptoAPI ALG_ID values malware commonly derives keys with.
var algIDs = map[int64]string{
	0x6601: "CALG_DES",
	0x6603: "CALG_3DES",
	0x6609: "CALG_3DES_112",
	0x660e: "CALG_AES_128",
	0x660f: "CALG_AES_192",
	0x6610: "CALG_AES_256",
	0x6801: "CALG_RC4",
	0x8003: "CALG_MD5",
	0x8004: "CALG_SHA1",
	0x800c: "CALG_SHA_256",
}

var compressionFormats = map[int64]string{
	2: "COMPRESSION_FORMAT_LZNT1",
	3: "COMPRESSION_FORMAT_XPRESS",
	4: "COMPRESSION_FORMAT_XPRESS_HUFF",
}

// APIDetector flags calls to Windows CryptoAPI, CNG and decompression
// routines and records their interesting arguments.
type APIDetector struct{}

func NewAPIDetector() *APIDetector { return &APIDetector{} }

// apiName strips import decorations: "__imp__CryptDecrypt@24" and
// "CryptAcquireContextA" both reduce to their table key.
func apiName(name string) string {
	n := strings.ToLower(name)
	n = strings.TrimSuffix(n, "@plt")
	n = strings.TrimPrefix(n, "__imp_")
	n = strings.TrimLeft(n, "_")
	if i := strings.IndexByte(n, '@'); i >= 0 {
		n = n[:i]
	}
	if _, ok := windowsAPIs[n]; !ok && (strings.HasSuffix(n, "a") || strings.HasSuffix(n, "w")) {
		n = n[:len(n)-1]
	}
	return n
}

func (d *APIDetector) Detect(findings []analysis.CallFinding) []analysis.CallFinding {
	for i, f := range findings {
		if f.Symbol == "" {
			continue
		}
		a, ok := windowsAPIs[apiName(f.Symbol)]
		if !ok {
			continue
		}
		meta := metadata(&findings[i])
		meta["family"] = a.family

		var parts []string
		for slot := 0; slot < analysis.MaxCallArgs; slot++ {
			name, ok := a.slots[slot]
			if !ok {
				continue
			}
			arg, ok := f.Arg(slot)
			if !ok {
				continue
			}
			meta[name] = arg.Value
			parts = append(parts, name+"="+describe(name, arg.Value))
		}
		comment := a.family + ": " + f.Symbol
		if len(parts) > 0 {
			comment += " " + strings.Join(parts, ", ")
		}
		findings[i].Comment = comment
	}
	return findings
}

func describe(name string, v any) string {
	switch v := v.(type) {
	case string:
		return `"` + v + `"`
	case int64:
		switch name {
		case "alg_id":
			if s, ok := algIDs[v]; ok {
				return s
			}
		case "format":
			if s, ok := compressionFormats[v]; ok {
				return s
			}
		case "data_len", "blob_len", "key_len":
			return fmt.Sprintf("%d", v)
		}
		return fmt.Sprintf("0x%x", v)
	}
	return "?"
}
