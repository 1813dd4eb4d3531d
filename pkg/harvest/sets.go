package harvest

import (
	"context"
	"net/url"
	"strings"

	"go.uber.org/zap"

	"github.com/oaiharvest/oaiharvest/pkg/oai"
)

// ListSets enumerates the top-level sets of the endpoint. Sub-sets
// (specs containing the hierarchy separator) are filtered out. The verb
// is issued once; the observed protocol behavior does not paginate
// ListSets.
//
// A transport failure here is not fatal: it is logged and an empty slice
// is returned, so the harvest simply finds nothing to do. A response that
// cannot be parsed is a protocol error and is returned to the caller.
func (c *Client) ListSets(ctx context.Context) ([]string, error) {
	params := url.Values{}
	params.Set("verb", oai.VerbListSets)

	body, err := c.transport.Fetch(ctx, params)
	if err != nil {
		c.logger.Error("set enumeration failed", zap.Error(err))
		return nil, nil
	}

	doc, err := oai.Parse(body)
	if err != nil {
		return nil, err
	}

	var sets []string
	for _, el := range doc.FindAll("setSpec") {
		spec := strings.TrimSpace(el.Text())
		if spec == "" || strings.Contains(spec, hierarchySeparator) {
			continue
		}
		sets = append(sets, spec)
	}

	c.logger.Info("sets enumerated", zap.Int("count", len(sets)))
	return sets, nil
}
