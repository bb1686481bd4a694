package dbclient

import (
	"fmt"
	"strings"

	"go.mongodb.org/mongo-driver/v2/x/mongo/driver/connstring"
)

// DatabaseFromURI returns the database named in a connection string's
// path, or "" when the path is empty. mongodb+srv URIs resolve their
// seed list over DNS while parsing.
func DatabaseFromURI(uri string) (string, error) {
	cs, err := connstring.ParseAndValidate(uri)
	if err != nil {
		return "", fmt.Errorf("parse mongo uri: %w", err)
	}
	return cs.Database, nil
}

// maskURI hides the password component of a connection string for logging.
func maskURI(uri string) string {
	schemeEnd := strings.Index(uri, "://")
	if schemeEnd == -1 {
		return uri
	}
	at := strings.LastIndex(uri, "@")
	if at == -1 || at < schemeEnd {
		return uri
	}
	creds := uri[schemeEnd+3 : at]
	if colon := strings.Index(creds, ":"); colon != -1 {
		creds = creds[:colon] + ":***"
	}
	return uri[:schemeEnd+3] + creds + uri[at:]
}
