package lang

import (
	"bytes"
	"encoding/hex"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/zeebo/xxh3"
)

// artifactMagic begins the header line of every persisted artifact:
//
//	talc-artifact <version> <key> <checksum> <created>
//
// followed by the generated code. The checksum is the XXH3-128 digest of
// the code and created is a Unix time in nanoseconds.
const artifactMagic = "talc-artifact"

type artifactHeader struct {
	version int
	key     Key
	sum     [16]byte
	created time.Time
}

func encodeArtifact(key Key, generated []byte, created time.Time) []byte {
	sum := xxh3.Hash128(generated).Bytes()

	header := fmt.Sprintf("%s %d %s %s %d\n",
		artifactMagic, codeVersion, key, hex.EncodeToString(sum[:]),
		created.UnixNano())

	out := make([]byte, 0, len(header)+len(generated))
	out = append(out, header...)

	return append(out, generated...)
}

func decodeArtifact(data []byte) (artifactHeader, []byte, error) {
	var h artifactHeader

	line, generated, ok := bytes.Cut(data, []byte{'\n'})
	if !ok {
		return h, nil, errors.New("missing artifact header")
	}

	fields := strings.Fields(string(line))
	if len(fields) != 5 || fields[0] != artifactMagic {
		return h, nil, errors.New("malformed artifact header")
	}

	version, err := strconv.Atoi(fields[1])
	if err != nil {
		return h, nil, fmt.Errorf("artifact version: %w", err)
	}

	if version != codeVersion {
		return h, nil, fmt.Errorf("artifact version %d, want %d",
			version, codeVersion)
	}

	h.version = version

	if h.key, err = ParseKey(fields[2]); err != nil {
		return h, nil, err
	}

	sum, err := hex.DecodeString(fields[3])
	if err != nil || len(sum) != len(h.sum) {
		return h, nil, fmt.Errorf("malformed artifact checksum %q", fields[3])
	}

	copy(h.sum[:], sum)

	if got := xxh3.Hash128(generated).Bytes(); got != h.sum {
		return h, nil, fmt.Errorf("checksum mismatch: have %x, want %x",
			got, h.sum)
	}

	nanos, err := strconv.ParseInt(fields[4], 10, 64)
	if err != nil {
		return h, nil, fmt.Errorf("artifact time: %w", err)
	}

	h.created = time.Unix(0, nanos)

	return h, generated, nil
}
