// Package beacon provides a client for submitting monitoring documents to a
// beacon daemon.
//
// Quick start:
//
//	c := beacon.New("http://localhost:9600")
//	report, err := c.Send(ctx, "my-service", []beacon.Doc{{
//	    Type:   "request_stats",
//	    Source: json.RawMessage(`{"requests": 1042}`),
//	}})
//	if err != nil {
//	    log.Fatal(err)
//	}
//	if report.Errors {
//	    log.Printf("%d documents failed", len(report.Failures))
//	}
//
// The Client is safe for concurrent use. Create once, reuse across requests.
package beacon
