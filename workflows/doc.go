// Package workflows provides the two composition patterns the orchestrator
// is built from.
//
// ProcessChain runs steps strictly in sequence, threading an accumulated
// state from one step to the next and refusing to start a step once its
// context is done:
//
//	result, err := workflows.ProcessChain(ctx, cfg, stages, session, runStage, nil)
//
// ProcessParallel fans items out to a bounded worker pool and fans the
// outcomes back in. Results keep input order regardless of completion
// order, and an optional SettleFunc observes each settlement (success or
// failure) as it happens:
//
//	result, err := workflows.ProcessParallel(ctx, cfg, requests, fetch,
//	    func(completed, total int, s workflows.Settlement[Request, []Item]) {
//	        log.Printf("%d/%d settled (failed=%v)", completed, total, s.Failed())
//	    })
//
// Both patterns emit observability events through the observer named in
// their config.
package workflows
