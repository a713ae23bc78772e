package validate

import (
	"encoding/base64"
	"io"
	"net/http"
	"net/url"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"miassistant/internal/deviceinfo"
)

type fakeDoer struct {
	lastReq  *http.Request
	lastBody string
	response string // plaintext the fake "server" should return, pre-encryption
}

func (f *fakeDoer) Do(req *http.Request) (*http.Response, error) {
	f.lastReq = req
	body, _ := io.ReadAll(req.Body)
	f.lastBody = string(body)

	cipherText, err := encrypt([]byte(f.response))
	if err != nil {
		return nil, err
	}
	b64 := base64.StdEncoding.EncodeToString(cipherText)
	return &http.Response{
		StatusCode: http.StatusOK,
		Body:       io.NopCloser(strings.NewReader(b64)),
	}, nil
}

func testInfo() deviceinfo.DeviceInfo {
	return deviceinfo.DeviceInfo{
		Device:   "product",
		Version:  "V1.0.0.0",
		SN:       "SERIAL123",
		Codebase: "codebase",
		Branch:   "stable",
		Romzone:  "cn",
	}
}

func TestValidateSendsExpectedFieldOrderAndHeaders(t *testing.T) {
	doer := &fakeDoer{response: `noise{"PkgRom":{"Validate":"tok","Erase":"1"}}trailing`}
	c := &Client{HTTP: doer, Endpoint: DefaultEndpoint}

	_, err := c.Validate(testInfo(), "deadbeef", true)
	require.NoError(t, err)

	require.NotNil(t, doer.lastReq)
	assert.Equal(t, "application/x-www-form-urlencoded", doer.lastReq.Header.Get("Content-Type"))
	assert.Equal(t, userAgent, doer.lastReq.Header.Get("User-Agent"))
	assert.True(t, strings.HasPrefix(doer.lastBody, "q="))
	assert.Contains(t, doer.lastBody, "&t=&s=1")

	q, err := url.ParseQuery(doer.lastBody)
	require.NoError(t, err)
	assert.NotEmpty(t, q.Get("q"))

	cipherText, err := base64.StdEncoding.DecodeString(q.Get("q"))
	require.NoError(t, err)
	plain, err := decrypt(cipherText)
	require.NoError(t, err)
	assert.Equal(t, `{"d":"product","v":"V1.0.0.0","c":"codebase","b":"stable","sn":"SERIAL123","l":"en-US","f":"1","options":{"zone":"cn"},"pkg":"deadbeef"}`, string(plain))
}

func TestValidateReturnsListingWhenFlashFalse(t *testing.T) {
	doer := &fakeDoer{response: `junk{"roms":[{"name":"stable"}]}junk`}
	c := &Client{HTTP: doer, Endpoint: DefaultEndpoint}

	result, err := c.Validate(testInfo(), "", false)
	require.NoError(t, err)

	listing, ok := result.(Listing)
	require.True(t, ok)
	assert.Contains(t, string(listing.Payload), "stable")
}

func TestValidateReturnsFlashTokenWithEraseTrue(t *testing.T) {
	doer := &fakeDoer{response: `{"PkgRom":{"Validate":"the-token","Erase":"1"}}`}
	c := &Client{HTTP: doer, Endpoint: DefaultEndpoint}

	result, err := c.Validate(testInfo(), "deadbeef", true)
	require.NoError(t, err)

	token, ok := result.(FlashToken)
	require.True(t, ok)
	assert.Equal(t, "the-token", token.Token)
	assert.True(t, token.Erase)
}

func TestValidateFlashTokenEraseFalseWhenZero(t *testing.T) {
	doer := &fakeDoer{response: `{"PkgRom":{"Validate":"tok","Erase":"0"}}`}
	c := &Client{HTTP: doer, Endpoint: DefaultEndpoint}

	result, err := c.Validate(testInfo(), "deadbeef", true)
	require.NoError(t, err)

	token := result.(FlashToken)
	assert.False(t, token.Erase)
}

func TestValidateFlashTokenEraseFalseWhenMissing(t *testing.T) {
	doer := &fakeDoer{response: `{"PkgRom":{"Validate":"tok"}}`}
	c := &Client{HTTP: doer, Endpoint: DefaultEndpoint}

	result, err := c.Validate(testInfo(), "deadbeef", true)
	require.NoError(t, err)

	token := result.(FlashToken)
	assert.False(t, token.Erase)
}

func TestValidateFlashRequiresPkgRom(t *testing.T) {
	doer := &fakeDoer{response: `{"other":"shape"}`}
	c := &Client{HTTP: doer, Endpoint: DefaultEndpoint}

	_, err := c.Validate(testInfo(), "deadbeef", true)
	require.Error(t, err)
}

func TestDecodeResponseRejectsUndecodableBase64(t *testing.T) {
	_, err := decodeResponse([]byte("not-base64!!!"), false)
	require.Error(t, err)
}
