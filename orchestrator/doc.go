// Package orchestrator runs sentiment queries through a fixed pipeline of
// agent capabilities and streams the session to a client.
//
// A session moves through
//
//	received → extract_ticker → collect_data → analyze_sentiment →
//	calculate_score → generate_report → done
//
// and may fail from any non-terminal stage. Stages run strictly in order
// (workflows.ProcessChain); within collect_data and analyze_sentiment
// requests fan out concurrently (workflows.ProcessParallel) and every one
// settles before the next stage starts. A failed, timed out or unsuccessful
// request in those two stages is logged to the stream and excluded.
// Everything else that goes wrong ends the session with a single error
// message.
//
// # Stream Protocol
//
// Messages are {type, payload} with type one of status, log, chart_update,
// result or error. Exactly one result or error ends every session. Stream
// enforces this and swallows writes once the client is gone.
//
//	p, _ := orchestrator.New(directory, h, config.DefaultOrchestratorConfig())
//	srv := orchestrator.NewServer(p, nil, logger)
//	http.ListenAndServe(":8080", srv.Handler())
//
// # Scoring
//
// CalculateScore folds item scores into
// round_half_up(100 × Σ(score·weight) / Σweight), clamped to [-100, 100].
// Items without a score are reported per source but never weighed.
package orchestrator
