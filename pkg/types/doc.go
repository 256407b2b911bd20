// Package types defines the shared contracts of the cascade system: the
// declared entity schema, the dynamic Record, the Store and Table
// persistence interfaces, the lifecycle Notifier, and the standard errors.
package types
