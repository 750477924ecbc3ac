// Package scan turns a reader.Device into the GET /scan endpoint.
//
// A scan is one call to Poll: the device is asked for a tag, and while
// nothing is present the loop sleeps for a short interval and asks again
// until the scan timeout has elapsed. The first successful read ends the
// loop immediately. Device errors are never retried.
//
// Two read paths exist. The default path returns the tag id together with
// the text stored on the tag. The ntag203 path (?tag=ntag203) reads raw
// page 0 of an NTAG203 and derives the seven byte uid from it.
//
// Responses:
//
//	200 {"id": "...", "text": "..."}  tag found (ntag203 path omits text)
//	408 (empty body)                  no tag before the timeout
//	400 <error message>               device or tag failure
//
// Requests may run concurrently; attempts against the device are
// serialized by the Handler.
package scan
