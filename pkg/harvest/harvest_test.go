package harvest

import (
	"fmt"
	"strings"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/oaiharvest/oaiharvest/pkg/clients"
	"github.com/oaiharvest/oaiharvest/pkg/config"
)

// newTestClient builds a client against a fake endpoint with fast
// application backoff. Transport-level tests live in pkg/clients; these
// tests either avoid transport failures or run with a zero retry cap so
// no exponential sleeps occur.
func newTestClient(t *testing.T, endpoint string, mode config.Mode, maxRetries int) *Client {
	t.Helper()

	cfg := config.NewConfig(endpoint, "oai_dc", t.TempDir())
	cfg.Mode = mode
	cfg.Reliability.MaxRetries = maxRetries
	cfg.Performance.Workers = 4

	transport := clients.NewTransport(endpoint, cfg.Timeouts, maxRetries, zap.NewNop())
	t.Cleanup(func() { transport.Close() })

	client := NewClient(cfg, transport, zap.NewNop())
	client.appBackoffUnit = time.Millisecond
	return client
}

func identifiersPage(ids []string, token string, withToken bool, size int) string {
	var b strings.Builder
	b.WriteString(`<?xml version="1.0" encoding="UTF-8"?>` + "\n")
	b.WriteString(`<OAI-PMH xmlns="http://www.openarchives.org/OAI/2.0/"><ListIdentifiers>`)
	for _, id := range ids {
		fmt.Fprintf(&b, "<header><identifier>%s</identifier></header>", id)
	}
	if withToken {
		b.WriteString("<resumptionToken")
		if size > 0 {
			fmt.Fprintf(&b, ` completeListSize="%d"`, size)
		}
		fmt.Fprintf(&b, ">%s</resumptionToken>", token)
	}
	b.WriteString(`</ListIdentifiers></OAI-PMH>`)
	return b.String()
}

func recordsPage(ids []string, token string, withToken bool, size int) string {
	var b strings.Builder
	b.WriteString(`<?xml version="1.0" encoding="UTF-8"?>` + "\n")
	b.WriteString(`<OAI-PMH xmlns="http://www.openarchives.org/OAI/2.0/"><ListRecords>`)
	for _, id := range ids {
		fmt.Fprintf(&b,
			"<record><header><identifier>%s</identifier></header><metadata><title>%s</title></metadata></record>",
			id, id)
	}
	if withToken {
		b.WriteString("<resumptionToken")
		if size > 0 {
			fmt.Fprintf(&b, ` completeListSize="%d"`, size)
		}
		fmt.Fprintf(&b, ">%s</resumptionToken>", token)
	}
	b.WriteString(`</ListRecords></OAI-PMH>`)
	return b.String()
}

func setsPage(specs []string) string {
	var b strings.Builder
	b.WriteString(`<?xml version="1.0" encoding="UTF-8"?>` + "\n")
	b.WriteString(`<OAI-PMH xmlns="http://www.openarchives.org/OAI/2.0/"><ListSets>`)
	for _, spec := range specs {
		fmt.Fprintf(&b, "<set><setSpec>%s</setSpec></set>", spec)
	}
	b.WriteString(`</ListSets></OAI-PMH>`)
	return b.String()
}

func getRecordResponse(id string) string {
	return fmt.Sprintf(`<?xml version="1.0" encoding="UTF-8"?>
<OAI-PMH xmlns="http://www.openarchives.org/OAI/2.0/"><GetRecord>
<record><header><identifier>%s</identifier></header><metadata><title>%s</title></metadata></record>
</GetRecord></OAI-PMH>`, id, id)
}

func protocolErrorResponse(code string) string {
	return fmt.Sprintf(`<?xml version="1.0" encoding="UTF-8"?>
<OAI-PMH xmlns="http://www.openarchives.org/OAI/2.0/"><error code="%s">refused</error></OAI-PMH>`, code)
}
