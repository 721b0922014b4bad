package sdk

import (
	"context"
	"fmt"
	"net/url"
	"sort"
	"strconv"
)

// Term ids understood by ListCourses and ListUnfinishedWork besides a concrete 2YYYYT id.
const (
	CurrentTerm = -1
	AllTerms    = 0
)

// UnknownTerm is the id ListTerms gives entries whose year or term is not numeric. ListCourses
// rejects it.
const UnknownTerm = -2

const (
	opTerms      = "list_terms"
	opCourses    = "list_courses"
	opWorks      = "list_assignments"
	opUnfinished = "list_unfinished_work"
)

// ListTerms returns the terms offered by the portal, newest first.
func (s *Session) ListTerms(ctx context.Context, bypass bool) ([]Term, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.listTerms(ctx, bypass)
}

// ListCourses returns the courses of a term. termID is CurrentTerm, AllTerms or a 2YYYYT id.
func (s *Session) ListCourses(ctx context.Context, termID int, bypass bool) ([]CourseInfo, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.listCourses(ctx, termID, bypass)
}

// ListAssignments returns every assignment of the course whose page is coursePageURL.
func (s *Session) ListAssignments(ctx context.Context, coursePageURL string, bypass bool) ([]WorkInfo, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.listAssignments(ctx, coursePageURL, bypass)
}

// ListUnfinishedWork returns, for each course of the term that has any, the assignments still to
// be done. bypass applies to every list it is built from.
func (s *Session) ListUnfinishedWork(ctx context.Context, termID int, bypass bool) ([]CourseWork, error) {
	if err := validateTermID(termID); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	key := NewCacheKey(s.cred.AccountID, opUnfinished, IntParam("term", termID))
	return cached(ctx, s, key, s.ttls.Unfinished, bypass, func(ctx context.Context) ([]CourseWork, error) {
		courses, err := s.listCourses(ctx, termID, bypass)
		if err != nil {
			return nil, err
		}
		result := []CourseWork{}
		for _, course := range courses {
			works, err := s.listAssignments(ctx, course.PageURL, bypass)
			if err != nil {
				return nil, fmt.Errorf("course %s: %w", course.Name, err)
			}
			var pending []WorkInfo
			for _, w := range works {
				if w.Pending() {
					pending = append(pending, w)
				}
			}
			if len(pending) > 0 {
				result = append(result, CourseWork{Course: course, Works: pending})
			}
		}
		return result, nil
	})
}

func (s *Session) listTerms(ctx context.Context, bypass bool) ([]Term, error) {
	key := NewCacheKey(s.cred.AccountID, opTerms)
	return cached(ctx, s, key, s.ttls.Terms, bypass, func(ctx context.Context) ([]Term, error) {
		listURL, err := s.courseListURL(ctx)
		if err != nil {
			return nil, err
		}
		resp, err := s.transport.Get(ctx, listURL, nil, "")
		if err != nil {
			return nil, err
		}
		terms, err := s.parser.Terms(resp.Body)
		if err != nil {
			return nil, err
		}
		sort.SliceStable(terms, func(i, j int) bool { return terms[i].ID > terms[j].ID })
		s.logger.Debug("terms listed", "count", len(terms))
		return terms, nil
	})
}

func (s *Session) listCourses(ctx context.Context, termID int, bypass bool) ([]CourseInfo, error) {
	if err := validateTermID(termID); err != nil {
		return nil, err
	}
	key := NewCacheKey(s.cred.AccountID, opCourses, IntParam("term", termID))
	return cached(ctx, s, key, s.ttls.Courses, bypass, func(ctx context.Context) ([]CourseInfo, error) {
		listURL, err := s.courseListURL(ctx)
		if err != nil {
			return nil, err
		}

		params := url.Values{"year": {"0"}, "term": {"0"}, "showContent": {"000"}}
		resolved := termID
		if resolved == CurrentTerm {
			terms, err := s.listTerms(ctx, false)
			if err != nil {
				return nil, err
			}
			if len(terms) == 0 || terms[0].ID == UnknownTerm {
				return nil, fmt.Errorf("resolve current term: the portal lists no numbered terms")
			}
			resolved = terms[0].ID
		}
		if resolved != AllTerms {
			params.Set("year", strconv.Itoa(resolved/10))
			params.Set("term", strconv.Itoa(resolved%10))
		}
		s.logger.Debug("listing courses", "term", resolved)

		resp, err := s.transport.Get(ctx, listURL, params, "")
		if err != nil {
			return nil, err
		}
		return s.parser.Courses(resp.Body)
	})
}

func (s *Session) listAssignments(ctx context.Context, coursePageURL string, bypass bool) ([]WorkInfo, error) {
	key := NewCacheKey(s.cred.AccountID, opWorks, StringParam("page", coursePageURL))
	return cached(ctx, s, key, s.ttls.Works, bypass, func(ctx context.Context) ([]WorkInfo, error) {
		if err := s.ensureAuthenticated(ctx); err != nil {
			return nil, err
		}
		resp, err := s.transport.Get(ctx, coursePageURL, nil, "")
		if err != nil {
			return nil, err
		}
		path, err := extractQuoted(resp.Body, s.endpoints.WorkListPath)
		if err != nil {
			return nil, fmt.Errorf("locate work list: %w", err)
		}
		resp, err = s.transport.Get(ctx, s.endpoints.WorkHost+path, nil, "")
		if err != nil {
			return nil, err
		}
		works, err := s.parser.Works(resp.Body)
		if err != nil {
			return nil, err
		}
		s.logger.Debug("assignments listed", "page", coursePageURL, "count", len(works))
		return works, nil
	})
}

// courseListURL authenticates if needed and reads the course list address off the personal space.
func (s *Session) courseListURL(ctx context.Context) (string, error) {
	if err := s.ensureAuthenticated(ctx); err != nil {
		return "", err
	}
	resp, err := s.transport.Get(ctx, s.endpoints.SpaceIndex, nil, s.endpoints.PortalReferer)
	if err != nil {
		return "", err
	}
	listURL, err := extractQuoted(resp.Body, s.endpoints.CourseListPrefix)
	if err != nil {
		return "", fmt.Errorf("locate course list: %w", err)
	}
	return listURL, nil
}

func validateTermID(termID int) error {
	if termID == CurrentTerm || termID == AllTerms || termID/10000 == 2 {
		return nil
	}
	return fmt.Errorf("%w: %d", ErrInvalidTermID, termID)
}
