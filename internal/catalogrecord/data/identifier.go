package data

import (
	"strings"

	"github.com/google/uuid"

	"github.com/CSCfi/fairdata-metax-sub001/internal/catalogrecord/biz"
)

// URNGenerator issues urn identifiers of the form <prefix><uuid>
type URNGenerator struct {
	prefix string
}

func NewURNGenerator(prefix string) *URNGenerator {
	if prefix == "" {
		prefix = "urn:nbn:fi:att:"
	}
	if !strings.HasSuffix(prefix, ":") {
		prefix += ":"
	}
	return &URNGenerator{prefix: prefix}
}

var _ biz.IdentifierGenerator = (*URNGenerator)(nil)

func (g *URNGenerator) NewURN() string {
	return g.prefix + uuid.NewString()
}
