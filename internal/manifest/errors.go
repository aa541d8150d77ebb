package manifest

import "errors"

var (
	ErrManifestRead    = errors.New("manifest read failed")
	ErrManifestParse   = errors.New("manifest parse failed")
	ErrManifestInvalid = errors.New("manifest invalid")
)
