// Package protocol owns the worterbuch wire contract.
//
// Ownership boundary:
//   - client (command) and server (event) message sets
//   - tagged-envelope codecs (json, cbor)
//   - frame primitives for stream transports (subpackage frame)
//
// Messages travel as single-key objects whose key names the variant, for
// example {"set":{"transactionId":1,"key":"a/b","value":1}}. An empty
// payload is the peer's end-of-session signal and decodes to EndOfSession.
package protocol
