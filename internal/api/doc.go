// Package api serves the bridge's HTTP surface.
//
// Routes:
//
//	POST /event                  cloud webhook; 200 {"status":"ok"}, 400 on bad data, 401 on bad signature
//	POST /refresh                request an immediate inventory refresh
//	GET  /health                 liveness plus dependency checks
//	GET  /metrics                Prometheus exposition
//	GET  /devices                entry snapshots, optional ?type= filter
//	GET  /devices/{id}           one entry by serial number or escaped resource name
//	GET  /devices/{id}/history   applied events for an entry, ?limit=
//	GET  /ws                     WebSocket stream of entry lifecycle messages
//
// # Webhook signatures
//
// When webhook.signature_secret is set, every POST /event must carry an
// X-Dt-Signature header: an HS256 JWT signed with the secret whose
// checksum_sha256 claim is the hex SHA-256 of the raw request body.
//
// The server follows the same lifecycle as other components:
//
//	server, err := api.New(deps)
//	server.Start(ctx)
//	defer server.Close()
package api
