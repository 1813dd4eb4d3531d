// Package oaiharvest harvests metadata records from OAI-PMH repositories,
// writing one XML file per record, partitioned by set.
//
// The harvester enumerates a repository's top-level sets (hierarchical
// sub-sets are skipped), walks each set's resumption-token pagination,
// and persists every record under <output>/<set>/<identifier>.xml.
// Two modes are supported:
//
//   - identifiers: list bare identifiers, then fetch each record with
//     GetRecord across a concurrent worker pool
//   - records: pull fully materialized record pages sequentially and
//     persist each record fragment as it arrives
//
// Transport failures retry with exponential backoff; protocol error
// codes delivered inside an HTTP-success body retry with linear backoff.
// Both share one absolute retry cap.
//
// # Quick Start
//
//	cfg := config.NewConfig("https://example.org/oai", "oai_dc", "./records")
//	h, err := harvest.NewHarvester(cfg, logger.Get())
//	if err != nil {
//		log.Fatal(err)
//	}
//	defer h.Close()
//	if err := h.Run(context.Background()); err != nil {
//		log.Fatal(err)
//	}
//
// The cmd/oaiharvest CLI exposes the same flow with flag and config-file
// layering.
package oaiharvest
