// Package mailparse turns Gmail's nested MIME payloads into values a mail UI
// can render.
//
// It works directly on the google.golang.org/api/gmail/v1 message structs and
// provides:
//   - base64url body decoding (Decode, DecodeBytes)
//   - display body selection, HTML preferred over plain text (ExtractBody)
//   - inline image resolution of cid: references into data URIs
//     (ResolveInlineImages)
//   - attachment enumeration (ListAttachments)
//   - recipient address normalization (ExtractEmailAddress)
//
// Every traversal is a small recursive function of its own. They look alike
// but select different nodes: body extraction visits the root, the CID and
// attachment scans only visit children.
//
// Nothing in this package returns decode errors. Malformed data is treated
// the same as missing data so callers always get a renderable result.
package mailparse
