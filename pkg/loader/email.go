package loader

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"io"
	"mime"
	"mime/multipart"
	"mime/quotedprintable"
	"net/mail"
	"net/url"
	"strings"

	"github.com/trestle-legal/docket/pkg/billing"

	"codeberg.org/readeck/go-readability/v2"
	"golang.org/x/net/html"
)

// bodyMax caps how much of an email body is read into memory.
const bodyMax = 10 << 20

// ParseEmail parses an RFC 5322 message into an email record and its
// body text. The Message-ID header is the natural key; a message
// without one falls back to the payload hash so replays still converge.
func ParseEmail(raw []byte) (billing.Record, string, error) {
	msg, err := mail.ReadMessage(bytes.NewReader(raw))
	if err != nil {
		return billing.Record{}, "", fmt.Errorf("failed to parse email: %w", err)
	}

	payload := billing.EmailPayload{
		MessageID: strings.Trim(msg.Header.Get("Message-ID"), "<> \t"),
		Subject:   decodeHeader(msg.Header.Get("Subject")),
		From:      firstAddress(msg.Header.Get("From")),
		To:        addressList(msg.Header.Get("To")),
		CC:        addressList(msg.Header.Get("Cc")),
		BCC:       addressList(msg.Header.Get("Bcc")),
	}

	timestamp, err := msg.Header.Date()
	if err != nil {
		return billing.Record{}, "", fmt.Errorf("failed to parse email date: %w", err)
	}

	key := payload.MessageID
	if key == "" {
		key = contentHash(raw)
	}

	text, err := emailBody(msg.Header.Get("Content-Type"), msg.Header.Get("Content-Transfer-Encoding"), msg.Body)
	if err != nil {
		return billing.Record{}, "", err
	}

	record := billing.Record{
		NaturalKey: key,
		Kind:       billing.KindEmail,
		Timestamp:  timestamp.UTC(),
		Email:      &payload,
	}
	if payload.Subject != "" {
		text = payload.Subject + "\n\n" + text
	}
	return record, collapseBlankLines(text), nil
}

// emailBody extracts the readable text of a message body, preferring a
// text/plain part. multipart messages are searched one level at a time.
func emailBody(contentType, encoding string, body io.Reader) (string, error) {
	mediaType := "text/plain"
	var params map[string]string
	if contentType != "" {
		var err error
		mediaType, params, err = mime.ParseMediaType(contentType)
		if err != nil {
			return "", fmt.Errorf("failed to parse content type: %w", err)
		}
	}

	if strings.HasPrefix(mediaType, "multipart/") {
		return multipartBody(params["boundary"], body)
	}

	raw, err := io.ReadAll(io.LimitReader(decodeTransfer(encoding, body), bodyMax))
	if err != nil {
		return "", fmt.Errorf("failed to read email body: %w", err)
	}

	if mediaType == "text/html" {
		return htmlToText(raw)
	}
	return string(raw), nil
}

func multipartBody(boundary string, body io.Reader) (string, error) {
	if boundary == "" {
		return "", fmt.Errorf("multipart email without boundary")
	}

	var htmlFallback string
	mr := multipart.NewReader(io.LimitReader(body, bodyMax), boundary)
	for {
		part, err := mr.NextPart()
		if err == io.EOF {
			break
		}
		if err != nil {
			return "", fmt.Errorf("failed to read email part: %w", err)
		}

		partType, params, err := mime.ParseMediaType(part.Header.Get("Content-Type"))
		if err != nil {
			continue
		}
		encoding := part.Header.Get("Content-Transfer-Encoding")

		switch {
		case strings.HasPrefix(partType, "multipart/"):
			nested, err := multipartBody(params["boundary"], part)
			if err == nil && nested != "" {
				return nested, nil
			}
		case partType == "text/plain":
			raw, err := io.ReadAll(io.LimitReader(decodeTransfer(encoding, part), bodyMax))
			if err != nil {
				return "", fmt.Errorf("failed to read text part: %w", err)
			}
			return string(raw), nil
		case partType == "text/html" && htmlFallback == "":
			raw, err := io.ReadAll(io.LimitReader(decodeTransfer(encoding, part), bodyMax))
			if err != nil {
				continue
			}
			if text, err := htmlToText(raw); err == nil {
				htmlFallback = text
			}
		}
	}
	return htmlFallback, nil
}

// htmlToText reduces an HTML body to its readable text. Readability
// strips boilerplate; bodies too short or malformed for it fall back
// to a plain text-node walk.
func htmlToText(raw []byte) (string, error) {
	base, _ := url.Parse("message:body")
	article, err := readability.FromReader(bytes.NewReader(raw), base)
	if err == nil {
		var builder strings.Builder
		if err := article.RenderText(&builder); err == nil {
			return builder.String(), nil
		}
	}
	return htmlTextNodes(raw)
}

func htmlTextNodes(raw []byte) (string, error) {
	node, err := html.Parse(bytes.NewReader(raw))
	if err != nil {
		return "", fmt.Errorf("failed to parse html body: %w", err)
	}

	var builder strings.Builder
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode && (n.Data == "script" || n.Data == "style") {
			return
		}
		if n.Type == html.TextNode {
			if text := strings.TrimSpace(n.Data); text != "" {
				builder.WriteString(text)
				builder.WriteString("\n")
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(node)
	return builder.String(), nil
}

func decodeTransfer(encoding string, r io.Reader) io.Reader {
	switch strings.ToLower(strings.TrimSpace(encoding)) {
	case "quoted-printable":
		return quotedprintable.NewReader(r)
	case "base64":
		return base64.NewDecoder(base64.StdEncoding, r)
	}
	return r
}

func decodeHeader(value string) string {
	dec := new(mime.WordDecoder)
	decoded, err := dec.DecodeHeader(value)
	if err != nil {
		return value
	}
	return decoded
}

func firstAddress(header string) string {
	if header == "" {
		return ""
	}
	addr, err := mail.ParseAddress(header)
	if err != nil {
		return header
	}
	return addr.Address
}

func addressList(header string) []string {
	if header == "" {
		return nil
	}
	addrs, err := mail.ParseAddressList(header)
	if err != nil {
		return []string{header}
	}
	out := make([]string, 0, len(addrs))
	for _, a := range addrs {
		out = append(out, a.Address)
	}
	return out
}
