// Package configflow turns form input into persisted sensor entries.
//
// The create step takes a name, weekdays and ordinals; the options step
// changes the weekdays and ordinals of an existing entry. Invalid input is
// reported as form errors so the caller can prompt again. Entries declared
// in the config file are synced through Import.
package configflow
