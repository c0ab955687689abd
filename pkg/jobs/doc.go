// Package jobs holds the periodic maintenance jobs run by crmcore-worker: the monthly
// plan credit grant and the expired invitation cleanup.
package jobs
