/*
Package webhook is the HTTP boundary described in §6: the source-repository
push receiver (SourceHandler) and the image-registry push receiver
(ImageHandler). Both validate the inbound request — HMAC-SHA256 over the
body for the source webhook, HTTP Basic auth for the image webhook — before
ever decoding JSON, so an unauthenticated or malformed request never
reaches the Controller (§7: AuthError and ParseError at the webhook
boundary never enter the queue).

Neither handler touches the Planner, Queue, or git checkout directly; both
call the Controller interface, which internal/app implements by fetching
the source repository to the new commit and running the Planner, or by
enumerating image-update candidates and enqueuing a Reconcile per match.
*/
package webhook
