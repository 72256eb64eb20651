// Package checksum holds the salted row digest shared by the truth and
// replica checksum streams. Both sides must render the same expression or
// their checksums are not comparable.
package checksum

import "fmt"

// SQL renders a PostgreSQL bigint digest of etag and benefactor salted with
// the text of bind parameter saltParam.
func SQL(saltParam, etagColumn, benefactorColumn string) string {
	return fmt.Sprintf(
		"('x' || substr(md5(%s::bigint::text || '-' || %s || '-' || %s::text), 1, 16))::bit(64)::bigint",
		saltParam, etagColumn, benefactorColumn)
}
