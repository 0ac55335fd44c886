// Package pending remembers what a user asked for right before being sent
// to checkout. After activation the stored content is popped and delivered
// without the user repeating the request.
package pending
