package port

import "image"

type CodeReader interface {
	// Read returns the decoded text of a code found in img
	Read(img image.Image) (string, bool)
}
