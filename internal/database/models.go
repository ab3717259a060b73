package database

// VoteType is the direction of a vote.
type VoteType string

const (
	Upvote   VoteType = "upvote"
	Downvote VoteType = "downvote"
)

// Valid reports whether v is a known vote direction.
func (v VoteType) Valid() bool {
	return v == Upvote || v == Downvote
}

// BiasLabels lists the accepted bias labels from left to right.
var BiasLabels = []string{"left", "center-left", "center", "center-right", "right"}

// ValidBiasLabel reports whether label is one of BiasLabels.
func ValidBiasLabel(label string) bool {
	for _, l := range BiasLabels {
		if l == label {
			return true
		}
	}
	return false
}

// Article is an immutable analysis snapshot.
type Article struct {
	ID               string
	Headline         string
	Content          *string
	URL              *string
	SourceName       *string
	PublishedAt      *string
	BiasScore        *float64
	BiasLabel        *string
	SentimentScore   *float64
	SentimentLabel   *string
	FactCheckScore   *float64
	CredibilityScore *float64
	FactCheck        *FactCheckDetail
	AIExplanation    *string
	AnalyzedAt       *string
	CreatedAt        string
}

// FactCheckDetail is the structured explanation stored alongside an article.
type FactCheckDetail struct {
	Explanation string   `json:"explanation"`
	KeyFindings []string `json:"key_findings"`
	Methodology string   `json:"methodology"`
	Limitations string   `json:"limitations"`
	Confidence  float64  `json:"confidence"`
}

// NewArticle holds the fields needed to store an analyzed article.
type NewArticle struct {
	Headline         string
	Content          *string
	URL              *string
	SourceName       *string
	PublishedAt      *string
	BiasScore        float64
	BiasLabel        string
	SentimentScore   float64
	SentimentLabel   string
	FactCheckScore   float64
	CredibilityScore float64
	FactCheck        *FactCheckDetail
	AIExplanation    string
}

// Vote is the single live vote a user holds on an article.
type Vote struct {
	ID        string
	ArticleID string
	UserID    string
	VoteType  VoteType
	CreatedAt string
	UpdatedAt string
}

// VoteCounts are the ledger totals for one article.
type VoteCounts struct {
	Upvotes   int
	Downvotes int
}

// RelatedArticle is an article with its vote projection.
type RelatedArticle struct {
	Article
	Upvotes   int
	Downvotes int
	UserVote  *VoteType
}

// RelatedQuery filters the related-articles listing.
type RelatedQuery struct {
	ExcludeID string
	BiasLabel string
	Limit     int
}

// Profile holds per-user reputation and streak state.
type Profile struct {
	UserID          string
	DisplayName     *string
	ReputationScore int
	DailyStreak     int
	LastLoginDate   *string
	TotalBadges     int
	CreatedAt       string
	UpdatedAt       string
}

// Badge is a catalog entry.
type Badge struct {
	ID               string
	Name             string
	Description      *string
	Icon             *string
	Color            *string
	RequirementType  *string
	RequirementValue *int
}

// UserBadge is an award record joined with its catalog entry.
type UserBadge struct {
	ID       string
	UserID   string
	BadgeID  string
	EarnedAt string
	Badge    Badge
}

// AnalysisRequest is one audit row per analysis submission.
type AnalysisRequest struct {
	ID           string
	UserID       *string
	InputType    string
	InputContent string
	Status       string
	ErrorMessage *string
	ArticleID    *string
	CreatedAt    string
	CompletedAt  *string
}

// SimilarLink is a computed similarity between two articles.
type SimilarLink struct {
	SimilarArticleID string
	SimilarityScore  float64
	ComparisonType   string
}

// SimilarArticle is a stored similarity joined with the similar article.
type SimilarArticle struct {
	Article
	SimilarityScore float64
	ComparisonType  string
}

// APIToken maps a hashed bearer token to a user.
type APIToken struct {
	TokenHash  string
	UserID     string
	Label      *string
	CreatedAt  string
	LastUsedAt *string
}

// Stats contains aggregate database statistics.
type Stats struct {
	Articles       int
	Votes          int
	Profiles       int
	BadgesAwarded  int
	Requests       int
	FailedRequests int
	Tokens         int
}
