// Package api holds the request/response types of the license check HTTP API
// and the helpers handlers use to send them.
//
// **error handling**
// handlers return errors from the manifest, crypto and api packages; they are all mapped to an
// api error code and sent to the client as an ErrorResponse.
// Use RespondWithErrorResponse() to create and send the error response.
//
// A license check that rejects a manifest is not an error: it is a 200 response with succeeded=false.
package api
