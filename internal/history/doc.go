package history

// Package history persists delivered announcements.
//
// It currently supports:
//   - Appending one entry per delivery attempt
//   - Paging recent entries for /recent
//   - Counting deliveries for the scheduled digest
