// Package validate builds the encrypted validation request, posts it to the
// vendor endpoint, and decodes the response into either a rom Listing or a
// FlashToken.
package validate

import (
	"encoding/base64"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"miassistant/internal/deviceinfo"
	"miassistant/internal/miaerr"
)

// DefaultEndpoint is the vendor validation endpoint. It is plain HTTP, not
// HTTPS, intentionally: the server side does not speak TLS for this path
// and switching is known to break.
const DefaultEndpoint = "http://update.miui.com/updates/miotaV3.php"

const userAgent = "MiTunes_UserAgent_v3.0"

// HTTPDoer is the narrow HTTP collaborator contract the client consumes, so
// tests can substitute a fake transport instead of dialing the network.
type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// Client posts validation requests to Endpoint via HTTP.
type Client struct {
	HTTP     HTTPDoer
	Endpoint string
}

// New returns a Client using the default endpoint and a 30-second timeout,
// mirroring the rest of this repository's HTTP collaborators.
func New() *Client {
	return &Client{
		HTTP:     &http.Client{Timeout: 30 * time.Second},
		Endpoint: DefaultEndpoint,
	}
}

// options is the nested "options" object in the request envelope.
type options struct {
	Zone string `json:"zone"`
}

// requestPayload's field order is significant: it must serialize in this
// exact order to match the vendor's wire format (and the documented
// round-trip test fixture).
type requestPayload struct {
	Device   string  `json:"d"`
	Version  string  `json:"v"`
	Codebase string  `json:"c"`
	Branch   string  `json:"b"`
	SN       string  `json:"sn"`
	Language string  `json:"l"`
	Flash    string  `json:"f"`
	Options  options `json:"options"`
	Pkg      string  `json:"pkg"`
}

// ValidationResult is the tagged union returned by Validate: exactly one of
// Listing or FlashToken.
type ValidationResult interface {
	isValidationResult()
}

// Listing is returned when Validate is called with an empty md5 and
// flash=false; Payload is the raw JSON tree the vendor returned.
type Listing struct {
	Payload json.RawMessage
}

func (Listing) isValidationResult() {}

// FlashToken is returned when Validate is called with a populated md5 and
// flash=true.
type FlashToken struct {
	Token string
	Erase bool
}

func (FlashToken) isValidationResult() {}

type pkgRomResponse struct {
	PkgRom *struct {
		Validate string `json:"Validate"`
		Erase    string `json:"Erase"`
	} `json:"PkgRom"`
}

// Validate builds the encrypted request for info and md5, posts it, and
// decodes the response according to flash.
func (c *Client) Validate(info deviceinfo.DeviceInfo, md5 string, flash bool) (ValidationResult, error) {
	req := requestPayload{
		Device:   info.Device,
		Version:  info.Version,
		Codebase: info.Codebase,
		Branch:   info.Branch,
		SN:       info.SN,
		Language: "en-US",
		Flash:    "1",
		Options:  options{Zone: info.Romzone},
		Pkg:      md5,
	}

	plain, err := json.Marshal(req)
	if err != nil {
		return nil, miaerr.Other(err, "marshaling validation request")
	}

	cipherText, err := encrypt(plain)
	if err != nil {
		return nil, err
	}

	b64 := base64.StdEncoding.EncodeToString(cipherText)
	body := "q=" + url.QueryEscape(b64) + "&t=&s=1"

	httpReq, err := http.NewRequest(http.MethodPost, c.Endpoint, strings.NewReader(body))
	if err != nil {
		return nil, miaerr.HTTP(err, "building validation request")
	}
	httpReq.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	httpReq.Header.Set("User-Agent", userAgent)

	resp, err := c.HTTP.Do(httpReq)
	if err != nil {
		return nil, miaerr.HTTP(err, "posting validation request")
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, miaerr.HTTP(err, "reading validation response")
	}

	return decodeResponse(respBody, flash)
}

func decodeResponse(respBody []byte, flash bool) (ValidationResult, error) {
	decoded, err := base64.StdEncoding.DecodeString(strings.TrimSpace(string(respBody)))
	if err != nil {
		return nil, miaerr.Crypto(err, "base64-decoding validation response")
	}

	plain, err := decrypt(decoded)
	if err != nil {
		return nil, err
	}

	text := string(plain)
	start := strings.IndexByte(text, '{')
	end := strings.LastIndexByte(text, '}')
	if start < 0 || end < start {
		return nil, miaerr.InvalidResponse("no JSON object found in decrypted response")
	}
	slice := []byte(text[start : end+1])

	if !flash {
		return Listing{Payload: json.RawMessage(slice)}, nil
	}

	var parsed pkgRomResponse
	if err := json.Unmarshal(slice, &parsed); err != nil {
		return nil, miaerr.InvalidResponse("malformed JSON: %v", err)
	}
	if parsed.PkgRom == nil {
		return nil, miaerr.InvalidResponse("PkgRom missing")
	}
	return FlashToken{
		Token: parsed.PkgRom.Validate,
		Erase: parsed.PkgRom.Erase == "1",
	}, nil
}
