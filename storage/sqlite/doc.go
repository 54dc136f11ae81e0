// Package sqlite implements storage.GuidelineRepository on SQLite through the
// pure-Go modernc.org/sqlite driver.
//
// The schema lives in embedded migrations applied on Open. Portfolios,
// documents and guidelines are ordinary tables joined by foreign keys with
// cascading deletes; embeddings are stored on the guideline row and scored
// in process, since SQLite has no vector type.
//
//	repo, err := sqlite.Open("/var/lib/guidelines/guidelines.db")
//	if err != nil {
//		return err
//	}
//	defer repo.Close()
package sqlite
