package server

import (
	"net/http"

	"github.com/TobiSchelling/BiasLens/internal/database"
)

const indexLimit = 50

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	label := r.URL.Query().Get("bias")
	if !database.ValidBiasLabel(label) {
		label = ""
	}

	articles, err := s.db.RelatedArticles(r.Context(), database.RelatedQuery{BiasLabel: label, Limit: indexLimit}, "")
	if err != nil {
		s.logger.Error("loading articles", "error", err)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	s.render(w, "index.html", map[string]any{
		"Articles":   articles,
		"BiasLabels": database.BiasLabels,
		"Selected":   label,
	})
}

func (s *Server) handleArticlePage(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id := r.PathValue("id")

	article, err := s.db.GetArticle(ctx, id)
	if err != nil {
		s.logger.Error("loading article", "id", id, "error", err)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}
	if article == nil {
		http.NotFound(w, r)
		return
	}

	counts, err := s.db.GetVoteCounts(ctx, id)
	if err != nil {
		s.logger.Error("loading votes", "id", id, "error", err)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}
	similar, err := s.db.GetSimilarArticles(ctx, id, 5)
	if err != nil {
		// The page still renders without the similar list.
		s.logger.Warn("loading similar articles", "id", id, "error", err)
	}

	s.render(w, "article.html", map[string]any{
		"Article": article,
		"Counts":  counts,
		"Similar": similar,
	})
}
