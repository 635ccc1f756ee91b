package collyfetcher

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"errors"
	"fmt"
	"net"
	"net/url"
	"strings"

	"github.com/gocolly/colly/v2"

	"github.com/bharatsindha/icon-media-web-crawler/internal/crawler"
)

// checkURL rejects anything that is not an absolute http(s) URL.
func checkURL(raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return &crawler.FetchError{Kind: crawler.FailureInvalidURL, URL: raw, Err: err}
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return &crawler.FetchError{
			Kind: crawler.FailureInvalidURL,
			URL:  raw,
			Err:  fmt.Errorf("unsupported scheme %q", u.Scheme),
		}
	}
	if u.Hostname() == "" {
		return &crawler.FetchError{Kind: crawler.FailureInvalidURL, URL: raw, Err: errors.New("missing host")}
	}
	return nil
}

// classify maps a collector failure onto a FetchError. statusCode is the
// response status when one was received; colly reports any status above 202
// as a failure.
func classify(rawURL string, statusCode int, err error) *crawler.FetchError {
	fetchErr := &crawler.FetchError{URL: rawURL, Err: err}
	switch {
	case errors.Is(err, colly.ErrRobotsTxtBlocked):
		fetchErr.Kind = crawler.FailureRobotsDisallowed
	case statusCode > 0:
		fetchErr.Kind = crawler.FailureHTTP
		fetchErr.StatusCode = statusCode
	case errors.Is(err, colly.ErrMissingURL):
		fetchErr.Kind = crawler.FailureInvalidURL
	case isTimeout(err):
		fetchErr.Kind = crawler.FailureTimeout
	case isTLSError(err):
		fetchErr.Kind = crawler.FailureTLS
	default:
		fetchErr.Kind = crawler.FailureConnection
	}
	return fetchErr
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}

func isTLSError(err error) bool {
	var (
		unknownAuthority x509.UnknownAuthorityError
		hostname         x509.HostnameError
		invalid          x509.CertificateInvalidError
		verification     *tls.CertificateVerificationError
		recordHeader     tls.RecordHeaderError
	)
	switch {
	case errors.As(err, &unknownAuthority),
		errors.As(err, &hostname),
		errors.As(err, &invalid),
		errors.As(err, &verification),
		errors.As(err, &recordHeader):
		return true
	}
	return err != nil && strings.Contains(err.Error(), "tls:")
}
