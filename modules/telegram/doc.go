// Package telegram delivers subscription lifecycle messages to the user's
// chat and auto-sends content held in the pending store after activation.
package telegram
