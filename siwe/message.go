// Package siwe implements the Sign-In with Ethereum (EIP-4361) message
// format and its verification.
package siwe

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	siwego "github.com/spruceid/siwe-go"

	"github.com/layer-3/siwegate/core"
)

const (
	headerSuffix = " wants you to sign in with your Ethereum account:"

	tagURI       = "URI: "
	tagVersion   = "Version: "
	tagChainID   = "Chain ID: "
	tagNonce     = "Nonce: "
	tagIssuedAt  = "Issued At: "
	tagExpires   = "Expiration Time: "
	tagNotBefore = "Not Before: "
	tagRequestID = "Request ID: "
	tagResources = "Resources:"

	// Version is the only message version defined by EIP-4361
	Version = "1"
)

// Message is a parsed EIP-4361 authentication message
type Message struct {
	Scheme         string
	Domain         string
	Address        string
	Statement      string
	URI            string
	Version        string
	ChainID        uint64
	Nonce          string
	IssuedAt       time.Time
	ExpirationTime *time.Time
	NotBefore      *time.Time
	RequestID      string
	Resources      []string
}

func malformed(format string, args ...any) error {
	return fmt.Errorf("%w: %s", core.ErrMalformedMessage, fmt.Sprintf(format, args...))
}

// Parse reads an EIP-4361 message. The grammar is strict: fields appear once
// and in order, and the address must be EIP-55 checksummed. Every failure
// wraps core.ErrMalformedMessage.
func Parse(raw string) (*Message, error) {
	msg := &Message{}

	body := raw
	if scheme, rest, ok := strings.Cut(raw, "://"); ok && scheme != "" && !strings.ContainsAny(scheme, " \n/") {
		msg.Scheme = scheme
		body = rest
	}

	parsed, err := siwego.ParseMessage(body)
	if err != nil {
		var invalid *siwego.InvalidMessage
		if errors.As(err, &invalid) {
			return nil, malformed("%s", invalid.Error())
		}
		return nil, malformed("%v", err)
	}

	msg.Domain = parsed.GetDomain()
	if strings.Contains(msg.Domain, " ") {
		return nil, malformed("invalid domain %q", msg.Domain)
	}
	msg.Address = parsed.GetAddress().Hex()
	if st := parsed.GetStatement(); st != nil {
		msg.Statement = *st
	}
	uri := parsed.GetURI()
	msg.URI = uri.String()
	msg.Version = parsed.GetVersion()
	if parsed.GetChainID() < 0 {
		return nil, malformed("invalid chain id")
	}
	msg.ChainID = uint64(parsed.GetChainID())
	msg.Nonce = parsed.GetNonce()

	if msg.IssuedAt, err = parseTime(parsed.GetIssuedAt()); err != nil {
		return nil, malformed("invalid issued at")
	}
	if exp := parsed.GetExpirationTime(); exp != nil {
		t, err := parseTime(*exp)
		if err != nil {
			return nil, malformed("invalid expiration time")
		}
		msg.ExpirationTime = &t
	}
	if nbf := parsed.GetNotBefore(); nbf != nil {
		t, err := parseTime(*nbf)
		if err != nil {
			return nil, malformed("invalid not before")
		}
		msg.NotBefore = &t
	}
	if rid := parsed.GetRequestID(); rid != nil {
		msg.RequestID = *rid
	}
	for _, r := range parsed.GetResources() {
		msg.Resources = append(msg.Resources, r.String())
	}

	return msg, nil
}

// String renders the message in its canonical EIP-4361 form
func (m *Message) String() string {
	var sb strings.Builder

	if m.Scheme != "" {
		sb.WriteString(m.Scheme + "://")
	}
	sb.WriteString(m.Domain + headerSuffix + "\n")
	sb.WriteString(m.Address + "\n\n")
	if m.Statement != "" {
		sb.WriteString(m.Statement + "\n")
	}
	sb.WriteString("\n")

	version := m.Version
	if version == "" {
		version = Version
	}
	sb.WriteString(tagURI + m.URI + "\n")
	sb.WriteString(tagVersion + version + "\n")
	sb.WriteString(tagChainID + strconv.FormatUint(m.ChainID, 10) + "\n")
	sb.WriteString(tagNonce + m.Nonce + "\n")
	sb.WriteString(tagIssuedAt + m.IssuedAt.UTC().Format(time.RFC3339))
	if m.ExpirationTime != nil {
		sb.WriteString("\n" + tagExpires + m.ExpirationTime.UTC().Format(time.RFC3339))
	}
	if m.NotBefore != nil {
		sb.WriteString("\n" + tagNotBefore + m.NotBefore.UTC().Format(time.RFC3339))
	}
	if m.RequestID != "" {
		sb.WriteString("\n" + tagRequestID + m.RequestID)
	}
	if len(m.Resources) > 0 {
		sb.WriteString("\n" + tagResources)
		for _, r := range m.Resources {
			sb.WriteString("\n- " + r)
		}
	}

	return sb.String()
}

func parseTime(s string) (time.Time, error) {
	return time.Parse(time.RFC3339Nano, s)
}
