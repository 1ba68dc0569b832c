package msgparse

import (
	"io"

	"golang.org/x/text/encoding/ianaindex"
	"golang.org/x/text/encoding/simplifiedchinese"
	"golang.org/x/text/transform"
)

// charsetReader backs the RFC 2047 word decoder used by ReadHeader,
// resolving non-UTF-8 encoded-word charsets via the IANA MIME registry.
func charsetReader(charset string, input io.Reader) (io.Reader, error) {
	switch charset {
	case "gb2312", "gbk", "hz-gb-2312":
		return transform.NewReader(input, simplifiedchinese.HZGB2312.NewDecoder()), nil
	}
	enc, err := ianaindex.MIME.Encoding(charset)
	if err != nil || enc == nil {
		return input, nil
	}
	return transform.NewReader(input, enc.NewDecoder()), nil
}
