// Package rtclient implements a client for the PowerP realtime telemetry API.
//
// # Architecture
//
// The client is structured into several key packages:
//   - api: Measurement catalog and single-block value queries
//   - auth: Static API key and client-credential bearer providers
//   - catalog: Cached catalog and (database, index) lookups
//   - config: YAML and environment configuration
//   - errors: Coded error taxonomy
//   - models: Wire contracts
//   - query: Grouping, block partitioning and sequential block runs
//   - scheduler: Periodic collection for watch mode
//   - transport: Shared HTTP client and its middlewares
//
// Key Features
//
//   - Lazy Authentication:
//     Client credentials are exchanged for a token on the first data call,
//     and the token is reused until shortly before it expires.
//
//   - Bounded Queries:
//     Measurements are grouped by database and aggregation and sent in
//     blocks of at most 20 indexes, one request at a time.
//
//   - Observability:
//     Structured logrus logging and Prometheus request and block metrics.
//
// Example Usage
//
//	creds, _ := auth.NewStaticKey(apiKey)
//	client, _ := api.NewClient(baseURL, creds)
//	orch, _ := query.NewOrchestrator(client, query.DefaultConfig())
//
//	measurements, _ := client.ListMeasurements(ctx)
//	end := time.Now()
//	err := orch.Run(ctx, query.GroupMeasurements(measurements), end.Add(-15*time.Minute), end,
//	    func(r query.BlockResult) error {
//	        // consume r.Values
//	        return nil
//	    })
//
// For more information about specific packages, see their respective
// documentation.
package rtclient
