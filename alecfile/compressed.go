// The MIT License (MIT)
//
// # Copyright (c) 2016 xtaci
//
// Permission is hereby granted, free of charge, to any person obtaining a copy
// of this software and associated documentation files (the "Software"), to deal
// in the Software without restriction, including without limitation the rights
// to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
// copies of the Software, and to permit persons to whom the Software is
// furnished to do so, subject to the following conditions:
//
// The above copyright notice and this permission notice shall be included in all
// copies or substantial portions of the Software.
//
// THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
// IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
// FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
// AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
// LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
// OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN THE
// SOFTWARE.

package alecfile

import (
	"bytes"
	"io"
	"os"

	"github.com/golang/snappy"
	"github.com/pkg/errors"
)

// SaveCompressed writes a snappy-compressed preload file to path. The
// uncompressed form is still the one crc32-checked by FromBytes; the
// compression is purely a storage-size optimisation for large
// dictionaries.
func SaveCompressed(pf PreloadFile, path string) error {
	f, err := os.Create(path)
	if err != nil {
		return errors.WithStack(err)
	}
	defer f.Close()

	w := snappy.NewBufferedWriter(f)
	if _, err := w.Write(pf.ToBytes()); err != nil {
		return errors.WithStack(err)
	}
	return errors.WithStack(w.Close())
}

// LoadCompressed reads and decompresses a preload file written by
// SaveCompressed.
func LoadCompressed(path string) (PreloadFile, error) {
	f, err := os.Open(path)
	if err != nil {
		return PreloadFile{}, errors.WithStack(err)
	}
	defer f.Close()

	r := snappy.NewReader(f)
	var buf bytes.Buffer
	if _, err := io.Copy(&buf, r); err != nil {
		return PreloadFile{}, errors.WithStack(err)
	}
	return FromBytes(buf.Bytes())
}
