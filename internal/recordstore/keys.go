package recordstore

import "regexp"

const (
	// IndexKey holds the JSON array of all known issue ids.
	IndexKey = "issue_keys"

	recordPrefix = "issue_"
)

// Ids are "<unix millis>-<lowercase alphanumerics>". They always start with
// a digit, so no id can derive IndexKey.
var idRe = regexp.MustCompile(`^[0-9]+-[0-9a-z]+$`)

// ValidID reports whether id has the shape produced by the id generator.
func ValidID(id string) bool {
	return idRe.MatchString(id)
}

// DeriveKey returns the backend key of the record for id.
func DeriveKey(id string) string {
	return recordPrefix + id
}
