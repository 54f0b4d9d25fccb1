package soap

import (
	"bytes"
	"context"
	"crypto/sha1"
	"crypto/tls"
	"encoding/base64"
	"io"
	"net/http"
	"time"

	"github.com/beevik/etree"
	"github.com/gofrs/uuid"
	"github.com/juju/errors"

	onvif "github.com/SridarDhandapani/onvif-simulator"
)

const (
	nsSecurity      = "http://docs.oasis-open.org/wss/2004/01/oasis-200401-wss-wssecurity-secext-1.0.xsd"
	nsSecurityUtil  = "http://docs.oasis-open.org/wss/2004/01/oasis-200401-wss-wssecurity-utility-1.0.xsd"
	passwordDigest  = "http://docs.oasis-open.org/wss/2004/01/oasis-200401-wss-username-token-profile-1.0#PasswordDigest"
	nonceBase64Type = "http://docs.oasis-open.org/wss/2004/01/oasis-200401-wss-soap-message-security-1.0#Base64Binary"
)

// Client sends SOAP requests to an ONVIF device, such as a running simulator
type Client struct {
	username string
	password string
	http     *http.Client
}

// NewClient creates a client. Empty credentials send no WS-Security header
// and a zero timeout means onvif.DefaultTimeout.
func NewClient(username, password string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = onvif.DefaultTimeout
	}
	return &Client{
		username: username,
		password: password,
		http:     &http.Client{Timeout: timeout},
	}
}

// SetInsecureTLS skips TLS certificate verification
func (c *Client) SetInsecureTLS(insecure bool) {
	if !insecure {
		c.http.Transport = nil
		return
	}
	c.http.Transport = &http.Transport{
		TLSClientConfig: &tls.Config{InsecureSkipVerify: true},
	}
}

// PasswordDigest computes the WS-Security UsernameToken digest
// Base64(SHA1(nonce + created + password))
func PasswordDigest(nonce []byte, created, password string) string {
	h := sha1.New()
	h.Write(nonce)
	h.Write([]byte(created))
	h.Write([]byte(password))
	return base64.StdEncoding.EncodeToString(h.Sum(nil))
}

// addSecurity appends a UsernameToken with a fresh nonce to header
func (c *Client) addSecurity(header *etree.Element, now time.Time) {
	nonce := uuid.Must(uuid.NewV4())
	created := now.UTC().Format(TimeLayout)

	sec := header.CreateElement("Security")
	sec.CreateAttr("xmlns", nsSecurity)
	token := sec.CreateElement("UsernameToken")
	token.CreateElement("Username").SetText(c.username)
	pw := token.CreateElement("Password")
	pw.CreateAttr("Type", passwordDigest)
	pw.SetText(PasswordDigest(nonce.Bytes(), created, c.password))
	n := token.CreateElement("Nonce")
	n.CreateAttr("EncodingType", nonceBase64Type)
	n.SetText(base64.StdEncoding.EncodeToString(nonce.Bytes()))
	cr := token.CreateElement("Created")
	cr.CreateAttr("xmlns", nsSecurityUtil)
	cr.SetText(created)
}

// Call posts body (one operation element using the standard prefixes) to
// endpoint and returns the response payload element. A fault response is
// returned as a *Fault error.
func (c *Client) Call(ctx context.Context, endpoint, action, body string) (*etree.Element, error) {
	op := etree.NewDocument()
	if err := op.ReadFromString(body); err != nil {
		return nil, errors.Annotate(err, "parsing request body")
	}
	if op.Root() == nil {
		return nil, errors.NotValidf("empty request body")
	}

	env := Wrap(op.Root())
	if c.username != "" {
		c.addSecurity(env.Header, time.Now())
	}
	env.Header.CreateElement("wsa:Action").SetText(action)
	env.Header.CreateElement("wsa:To").SetText(endpoint)
	payload, err := env.Bytes()
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, errors.Trace(err)
	}
	req.Header.Set("Content-Type", ContentType)
	req.Header.Set("SOAPAction", action)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, errors.Annotatef(err, "calling %s", endpoint)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, errors.Trace(err)
	}

	if fault := parseFault(respBody); fault != nil {
		return nil, fault
	}
	// Some devices answer errors with an empty body instead of a fault
	if resp.StatusCode >= 400 {
		return nil, errors.Errorf("HTTP %d: %s", resp.StatusCode, http.StatusText(resp.StatusCode))
	}

	parsed, err := ParseRequest(respBody)
	if err != nil {
		return nil, errors.Annotate(err, "parsing response")
	}
	return parsed.Payload, nil
}
