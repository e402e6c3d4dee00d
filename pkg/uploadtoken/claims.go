// Package uploadtoken signs and verifies the tokens that bind the second
// phase of an upload to the pending file created by the first.
package uploadtoken

import (
	"github.com/golang-jwt/jwt/v5"

	"github.com/marmos91/storagebox/pkg/metadata"
)

// Payload is what a token authorizes: finishing file FileID as Name under
// ParentID, optionally replacing an existing file.
type Payload struct {
	ParentID *metadata.EntryID `json:"parentID"`
	Name     string            `json:"name"`
	FileID   metadata.FileID   `json:"fileID"`
	Replace  bool              `json:"replace"`
}

// Claims are the JWT claims of an upload token. The filesystem ID travels
// as the audience.
type Claims struct {
	jwt.RegisteredClaims

	Upload *Payload `json:"upload"`
}
