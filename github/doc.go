// Package github reads commits and file revisions of one repository branch
// through the GitHub REST API.
//
// # Rate Limiting
//
// Requests are throttled two ways:
//
//  1. Proactive throttling: a token bucket keeps the client at about 1.2
//     requests per second.
//
//  2. Reactive handling: X-RateLimit-Remaining and X-RateLimit-Reset are
//     tracked from every response, and once the remaining quota falls below a
//     reserve the client waits for the reset.
//
// Anonymous access works but is limited by GitHub to 60 requests per hour,
// which is enough for a watcher that checks every few minutes.
//
// # Svn revisions
//
// The watched repository is a git-svn mirror, so commits carry a trailing
// git-svn-id line. Every listed commit's svn revision is saved to the
// configured [vcs.RevStore] so that "r12345" can later be resolved.
package github
