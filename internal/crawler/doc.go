// Package crawler holds the domain model of the keyword crawler: domains,
// crawl jobs, keyword candidates and index records, plus the interfaces of the
// collaborators (fetcher, stores, clock) that the pipeline is wired from.
package crawler
