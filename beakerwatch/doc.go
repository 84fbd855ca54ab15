// Package beakerwatch submits a job to a Beaker hub and blocks until the job
// reaches a terminal status, reporting status transitions as they happen.
//
// Quick start:
//  1. Create a HubClient with NewHubClient pointing at your hub.
//  2. Build a Runner with NewRunner; optionally wire a Store (NewSQLStore)
//     to keep an audit trail of runs.
//  3. Call Runner.Run with a JobSource (FileSource or XMLSource). It submits
//     the job, watches it to completion and returns a Result.
//  4. For background execution, enqueue RunRequests with an Enqueuer and
//     process them with a Worker.
package beakerwatch
